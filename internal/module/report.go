package module

import (
	"errors"
	"fmt"
)

// Result is the outcome of one module in a bulk or single operation.
type Result struct {
	ID      string       `json:"id"`
	State   State        `json:"state"`
	OK      bool         `json:"ok"`
	Skipped string       `json:"skipped,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`

	err error
}

// Report lists per-module outcomes of LoadAll.
type Report struct {
	Results []Result `json:"results"`
	// Errors are discovery problems not tied to a loadable module.
	Errors []string `json:"errors,omitempty"`

	discoveryErrs []error
}

func (r *Report) addDiscoveryError(err error) {
	r.discoveryErrs = append(r.discoveryErrs, err)
	r.Errors = append(r.Errors, err.Error())
}

// Failed returns the results that did not succeed.
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.OK {
			out = append(out, res)
		}
	}
	return out
}

// Result returns the outcome for id.
func (r *Report) Result(id string) (Result, bool) {
	for _, res := range r.Results {
		if res.ID == id {
			return res, true
		}
	}
	return Result{}, false
}

// Err joins every failure, or returns nil when all succeeded.
func (r *Report) Err() error {
	errs := append([]error{}, r.discoveryErrs...)
	for _, res := range r.Results {
		if res.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.ID, res.err))
		}
	}
	return errors.Join(errs...)
}
