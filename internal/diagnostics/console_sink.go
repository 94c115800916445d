package diagnostics

import "fmt"

// ConsoleSink prints Diagnostics to stdout, for ledctl-sim where
// pulling in the full zerolog setup would be overkill.
type ConsoleSink struct{}

func (ConsoleSink) Emit(d Diagnostic) {
	fmt.Printf("[%s] %s: %s %s\n", d.Severity, d.Code, d.Summary, d.Detail)
}
