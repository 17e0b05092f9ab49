package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uitable"

	"github.com/roach88/cogd/internal/module"
)

const maxColWidth = 60

func newTable() *uitable.Table {
	t := uitable.New()
	t.MaxColWidth = maxColWidth
	t.Wrap = true
	return t
}

func writeTable(w io.Writer, t *uitable.Table) error {
	_, err := fmt.Fprintln(w, t)
	return err
}

// describeError renders an error detail on one line.
func describeError(d *module.ErrorDetail) string {
	if d == nil {
		return ""
	}
	s := d.Code + ": " + d.Message
	if d.Cause != "" {
		s += " (" + d.Cause + ")"
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func since(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return humanize.Time(*t)
}

// ModuleList is the output of `modules list`.
type ModuleList struct {
	Modules []module.Snapshot `json:"modules"`
}

func (l ModuleList) WriteText(w io.Writer) error {
	if len(l.Modules) == 0 {
		_, err := fmt.Fprintln(w, "No modules found.")
		return err
	}
	t := newTable()
	t.AddRow("ID", "STATE", "ENTRY", "HANDLERS", "LOADED", "ERROR")
	for _, m := range l.Modules {
		t.AddRow(m.ID, m.State, orDash(m.Entry), len(m.Handlers), since(m.LoadedAt), orDash(describeError(m.Error)))
	}
	return writeTable(w, t)
}

// ModuleDetail is the output of `modules show`.
type ModuleDetail struct {
	module.Snapshot
}

func (d ModuleDetail) WriteText(w io.Writer) error {
	m := d.Snapshot
	t := newTable()
	t.AddRow("ID:", m.ID)
	t.AddRow("Path:", m.Path)
	t.AddRow("State:", m.State)
	t.AddRow("Entry:", orDash(m.Entry))
	if m.Description != "" {
		t.AddRow("Description:", m.Description)
	}
	t.AddRow("Enabled:", m.Enabled)
	t.AddRow("Handlers:", orDash(strings.Join(m.Handlers, ", ")))
	t.AddRow("Loads:", m.Loads)
	t.AddRow("Failures:", m.Failures)
	t.AddRow("Loaded:", since(m.LoadedAt))
	if m.Error != nil {
		t.AddRow("Error:", describeError(m.Error))
	}
	if err := writeTable(w, t); err != nil {
		return err
	}
	if len(m.History) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	h := newTable()
	h.AddRow("WHEN", "FROM", "TO", "ERROR")
	for _, tr := range m.History {
		h.AddRow(humanize.Time(tr.At), tr.From, tr.To, orDash(tr.Error))
	}
	return writeTable(w, h)
}

// OpResult is the output of `modules load|unload|reload`.
type OpResult struct {
	Op string `json:"op"`
	module.Result
}

func (r OpResult) WriteText(w io.Writer) error {
	if r.OK {
		_, err := fmt.Fprintf(w, "%s %s: ok (%s)\n", r.Op, r.ID, r.State)
		return err
	}
	state := ""
	if r.State != "" {
		state = fmt.Sprintf(" (%s)", r.State)
	}
	_, err := fmt.Fprintf(w, "%s %s: failed%s\n  %s\n", r.Op, r.ID, state, describeError(r.Error))
	return err
}

// LoadAllResult is the output of `modules load-all`.
type LoadAllResult struct {
	*module.Report
	Loaded  int `json:"loaded"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

func newLoadAllResult(r *module.Report) LoadAllResult {
	out := LoadAllResult{Report: r}
	for _, res := range r.Results {
		switch {
		case !res.OK:
			out.Failed++
		case res.Skipped != "":
			out.Skipped++
		default:
			out.Loaded++
		}
	}
	return out
}

func (r LoadAllResult) WriteText(w io.Writer) error {
	if len(r.Results) > 0 {
		t := newTable()
		t.AddRow("ID", "STATE", "RESULT")
		for _, res := range r.Results {
			result := "loaded"
			switch {
			case !res.OK:
				result = describeError(res.Error)
			case res.Skipped != "":
				result = "skipped: " + res.Skipped
			}
			t.AddRow(res.ID, res.State, result)
		}
		if err := writeTable(w, t); err != nil {
			return err
		}
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "discovery: %s\n", e)
	}
	_, err := fmt.Fprintf(w, "%d loaded, %d failed, %d skipped\n", r.Loaded, r.Failed, r.Skipped)
	return err
}

// DiscoveredModule is one manifest found by `discover`.
type DiscoveredModule struct {
	ID          string              `json:"id"`
	Path        string              `json:"path"`
	Entry       string              `json:"entry,omitempty"`
	Description string              `json:"description,omitempty"`
	Enabled     bool                `json:"enabled"`
	Error       *module.ErrorDetail `json:"error,omitempty"`
}

// DiscoverResult is the output of `discover`.
type DiscoverResult struct {
	Modules []DiscoveredModule `json:"modules"`
	Errors  []string           `json:"errors,omitempty"`
	Invalid int                `json:"invalid"`
}

func (r DiscoverResult) WriteText(w io.Writer) error {
	if len(r.Modules) == 0 {
		fmt.Fprintln(w, "No modules found.")
	} else {
		t := newTable()
		t.AddRow("ID", "ENTRY", "ENABLED", "PATH", "ERROR")
		for _, m := range r.Modules {
			t.AddRow(m.ID, orDash(m.Entry), m.Enabled, m.Path, orDash(describeError(m.Error)))
		}
		if err := writeTable(w, t); err != nil {
			return err
		}
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "error: %s\n", e)
	}
	_, err := fmt.Fprintf(w, "%d module(s), %d invalid\n", len(r.Modules), r.Invalid)
	return err
}
