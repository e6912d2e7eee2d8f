package nma

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeLabel trims and NFC-normalises a study, treatment or covariate
// label so that codes typed differently in IPD and AgD sources compare equal.
func NormalizeLabel(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// normalizeKeys returns a copy of m with normalised keys.
func normalizeKeys(m map[string]float64) (map[string]float64, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		nk := NormalizeLabel(k)
		if _, dup := out[nk]; dup {
			return nil, SchemaErrorf("column %q duplicates another column after normalisation", k)
		}
		out[nk] = v
	}
	return out, nil
}
