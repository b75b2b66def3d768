package corscheck

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
)

// WriteJSON encodes the report as indented JSON.
func (r Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText prints a console summary of both probes.
func (r Report) WriteText(w io.Writer) error {
	for _, res := range []Result{r.Preflight, r.Register} {
		if err := res.writeText(w); err != nil {
			return err
		}
	}

	verdict := "PASS"
	if !r.Passed() {
		verdict = "FAIL"
	}
	_, err := fmt.Fprintf(w, "\nCORS check: %s\n", verdict)
	return err
}

func (r Result) writeText(w io.Writer) error {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(w, "%s\n%s %s (origin %s)\n%s\n", rule, r.Method, r.URL, r.Origin, rule)

	if r.Err != "" {
		_, err := fmt.Fprintf(w, "error: %s\n\n", r.Err)
		return err
	}

	fmt.Fprintf(w, "status:   %s\nduration: %s\n", r.Status, r.Duration.Round(time.Millisecond))

	fmt.Fprintln(w, "\nCORS headers:")
	if len(r.CORSHeaders) == 0 {
		fmt.Fprintln(w, "  none")
	} else {
		renderHeaders(w, func(add func(k, v string)) {
			for _, k := range sortedKeys(r.CORSHeaders) {
				add(k, r.CORSHeaders[k])
			}
		})
	}

	fmt.Fprintln(w, "\nAll headers:")
	renderHeaders(w, func(add func(k, v string)) {
		for _, k := range sortedKeys(r.Headers) {
			add(k, strings.Join(r.Headers[k], ", "))
		}
	})

	if r.Body != nil {
		fmt.Fprintln(w, "\nBody:")
		switch b := r.Body.(type) {
		case string:
			fmt.Fprintln(w, b)
		default:
			data, err := json.MarshalIndent(b, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(w, string(data))
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}

func renderHeaders(w io.Writer, fill func(add func(k, v string))) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Header", "Value"})
	table.SetAutoWrapText(false)
	fill(func(k, v string) { table.Append([]string{k, v}) })
	table.Render()
}
