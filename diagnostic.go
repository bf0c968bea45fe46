package beanpipe

import "fmt"

// Severity qualifies how serious a diagnostic is.
type Severity int

const (
	// Warning reports a recoverable condition worth reviewing.
	Warning Severity = iota
	// Error reports a condition the host should treat as a validation failure.
	Error
)

func (s Severity) String() string {
	switch s {
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// DiagKind is a typed string identifying the category of a diagnostic.
type DiagKind string

// Diagnostic kinds reported by the plugins.
const (
	// OrphanLink reports a correlation group with fewer than 2 members.
	OrphanLink DiagKind = "orphan-link"
	// AmountMismatch reports a pair whose amounts do not sum to zero within
	// epsilon, or whose currencies differ.
	AmountMismatch DiagKind = "amount-mismatch"
	// AmbiguousGroup reports a multi-candidate group with unresolved leftovers
	// after greedy matching.
	AmbiguousGroup DiagKind = "ambiguous-group"
	// InvalidTag reports a transaction tag outside the allowed vocabulary.
	InvalidTag DiagKind = "invalid-tag"
	// MissingTag reports an untagged transaction posting to a tag-required account.
	MissingTag DiagKind = "missing-tag"
	// InvalidMetadata reports a metadata key or value violating the schema.
	InvalidMetadata DiagKind = "invalid-metadata"
	// InvalidPostingTags reports a posting "tags" metadata value that is not a string.
	InvalidPostingTags DiagKind = "invalid-posting-tags"
)

// Diagnostic is a reported validation finding. It is non-fatal: plugins
// collect diagnostics and leave the host to decide whether they fail the run.
type Diagnostic struct {
	Severity Severity
	Kind     DiagKind
	Message  string

	// Txn references the offending transaction, nil when the finding is not
	// tied to one (e.g. a configuration file problem surfaced as a finding).
	Txn *Transaction
	// Account is the offending posting's account, empty when the finding
	// applies to the whole transaction.
	Account string
}

func (d Diagnostic) String() string {
	ref := ""
	if d.Txn != nil {
		ref = " (" + d.Txn.Ref() + ")"
	}
	return fmt.Sprintf("%s: %s: %s%s", d.Severity, d.Kind, d.Message, ref)
}

// HasErrors reports whether any diagnostic in the list has Error severity.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// ConfigError is a fatal configuration problem: a missing or malformed
// configuration aborts the whole run before any annotation is written.
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return "configuration error: " + e.Reason
}

func (e *ConfigError) Unwrap() error { return e.Err }
