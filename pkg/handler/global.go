package handler

// Default is the process-wide registry message classes register themselves
// into at init time.
var Default = New()

// ResetDefault replaces Default with an empty registry. Exposed purely for
// tests that need a clean slate between cases.
func ResetDefault() {
	Default = New()
}
