package domain

// Diagnostic is a message accumulated while an action runs. It is either Blocking (the flow
// failed) or Informational (shown alongside a successful or neutral render).
type Diagnostic interface {
	DiagnosticCode() string
	DiagnosticMessage() string
	diagnostic()
}

// Blocking is a diagnostic that stops the flow, e.g. a wrong password.
type Blocking struct {
	Code    string
	Message string
}

func (b Blocking) DiagnosticCode() string    { return b.Code }
func (b Blocking) DiagnosticMessage() string { return b.Message }
func (Blocking) diagnostic()                 {}

// Informational is a notice, e.g. "You are now logged out."
type Informational struct {
	Code    string
	Message string
}

func (i Informational) DiagnosticCode() string    { return i.Code }
func (i Informational) DiagnosticMessage() string { return i.Message }
func (Informational) diagnostic()                 {}

// Diagnostics is an ordered collection of diagnostics.
type Diagnostics []Diagnostic

// Add appends diagnostics and returns the extended collection.
func (d Diagnostics) Add(items ...Diagnostic) Diagnostics {
	return append(d, items...)
}

// HasBlocking reports whether any blocking diagnostic is present.
func (d Diagnostics) HasBlocking() bool {
	for _, item := range d {
		if _, ok := item.(Blocking); ok {
			return true
		}
	}
	return false
}

// Has reports whether a diagnostic with the code is present.
func (d Diagnostics) Has(code string) bool {
	for _, item := range d {
		if item.DiagnosticCode() == code {
			return true
		}
	}
	return false
}

// Codes lists diagnostic codes in order.
func (d Diagnostics) Codes() []string {
	codes := make([]string, 0, len(d))
	for _, item := range d {
		codes = append(codes, item.DiagnosticCode())
	}
	return codes
}

// Split separates blocking diagnostics from informational ones, preserving order.
func (d Diagnostics) Split() ([]Blocking, []Informational) {
	var (
		blocking []Blocking
		info     []Informational
	)
	for _, item := range d {
		switch v := item.(type) {
		case Blocking:
			blocking = append(blocking, v)
		case Informational:
			info = append(info, v)
		}
	}
	return blocking, info
}
