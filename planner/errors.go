package planner

import "strings"

// CyclicPinError is spec.md §4.4's "a cycle involving exact pins is a fatal
// error (CyclicPin)".
type CyclicPinError struct {
	Names []string
}

func (e *CyclicPinError) Error() string {
	return "cyclic pin_subpackage(exact=true) reference among outputs: " + strings.Join(e.Names, " -> ")
}
