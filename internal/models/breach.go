package models

// BreachResult reports whether a password appears in known breach corpora.
// Provider failures never surface as errors; they yield Breached=false with
// Error set so callers can log the degradation.
type BreachResult struct {
	Breached bool   `json:"breached"`
	Count    int    `json:"count,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Breach check error strings. These are part of the result shape, not Go
// errors: the check fails open by contract.
const (
	BreachErrTimeout     = "Timeout"
	BreachErrUnavailable = "API unavailable"
	BreachErrFailed      = "Check failed"
)
