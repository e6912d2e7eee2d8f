package harness

import (
	"github.com/jSoboil/multinma/internal/posterior"
)

// Check is the outcome of one assertion.
type Check struct {
	Type string `json:"type"`
	// Target names what was checked: a parameter, "trt@rank" or a code.
	Target   string  `json:"target"`
	Observed float64 `json:"observed"`
	Pass     bool    `json:"pass"`
	Message  string  `json:"message,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every assertion held.
	Pass bool `json:"pass"`

	// FitID is the ID the fit was stored under.
	FitID string `json:"fit_id"`

	// Checks holds one entry per assertion, in scenario order.
	Checks []Check `json:"checks"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Fit is the fit as read back from the store.
	Fit *posterior.Fit `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Checks: []Check{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddCheck records an assertion outcome; failed checks also add an error.
func (r *Result) AddCheck(c Check) {
	r.Checks = append(r.Checks, c)
	if !c.Pass {
		r.AddError(c.Type + " " + c.Target + ": " + c.Message)
	}
}
