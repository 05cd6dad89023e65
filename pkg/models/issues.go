package models

import "fmt"

// IssueSeverity classifies how a validation issue affects processing.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// IssueKind is the error taxonomy of the aggregation pipeline.
type IssueKind string

const (
	// IssueStructural is a schema violation, fatal for the offending
	// document fragment only.
	IssueStructural IssueKind = "structural"
	// IssueReference is a dangling reference. Mandatory references are
	// fatal for the referencing entity and retried on the next crawl.
	IssueReference IssueKind = "reference"
	// IssueConsistency is a cross-document invariant violation; the entity
	// is marked conflicted and the previous good state is retained.
	IssueConsistency IssueKind = "consistency"
	// IssueFetch is a transient network or provider failure.
	IssueFetch IssueKind = "fetch"
	// IssueLifecycle is a non-fatal lifecycle policy deviation.
	IssueLifecycle IssueKind = "lifecycle"
)

// ValidationIssue is one finding from any pipeline stage.
type ValidationIssue struct {
	Kind     IssueKind     `json:"kind"`
	Severity IssueSeverity `json:"severity"`
	OrdID    string        `json:"ordId,omitempty"`
	Path     string        `json:"path,omitempty"`
	Message  string        `json:"message"`
}

func (i ValidationIssue) String() string {
	if i.Path != "" {
		return fmt.Sprintf("%s/%s at %s: %s", i.Kind, i.Severity, i.Path, i.Message)
	}
	return fmt.Sprintf("%s/%s: %s", i.Kind, i.Severity, i.Message)
}

// StructuralError builds a structural issue at the given document path.
func StructuralError(path, format string, args ...any) ValidationIssue {
	return ValidationIssue{
		Kind:     IssueStructural,
		Severity: SeverityError,
		Path:     path,
		Message:  fmt.Sprintf(format, args...),
	}
}

// ReferenceIssue builds a reference issue for an entity; mandatory controls
// the severity.
func ReferenceIssue(ordID, path string, mandatory bool, format string, args ...any) ValidationIssue {
	severity := SeverityWarning
	if mandatory {
		severity = SeverityError
	}
	return ValidationIssue{
		Kind:     IssueReference,
		Severity: severity,
		OrdID:    ordID,
		Path:     path,
		Message:  fmt.Sprintf(format, args...),
	}
}

// ConsistencyIssue builds a cross-document consistency error.
func ConsistencyIssue(ordID, format string, args ...any) ValidationIssue {
	return ValidationIssue{
		Kind:     IssueConsistency,
		Severity: SeverityError,
		OrdID:    ordID,
		Message:  fmt.Sprintf(format, args...),
	}
}

// LifecycleWarning builds a non-fatal lifecycle policy deviation.
func LifecycleWarning(ordID, format string, args ...any) ValidationIssue {
	return ValidationIssue{
		Kind:     IssueLifecycle,
		Severity: SeverityWarning,
		OrdID:    ordID,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Issues is a collection of findings with severity helpers.
type Issues []ValidationIssue

// HasErrors reports whether any issue is an error.
func (is Issues) HasErrors() bool {
	for _, issue := range is {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ForOrdID returns the issues recorded against one entity.
func (is Issues) ForOrdID(ordID string) Issues {
	var out Issues
	for _, issue := range is {
		if issue.OrdID == ordID {
			out = append(out, issue)
		}
	}
	return out
}

// ErrorsFor reports whether the entity has at least one error-severity issue.
func (is Issues) ErrorsFor(ordID string) bool {
	for _, issue := range is {
		if issue.OrdID == ordID && issue.Severity == SeverityError {
			return true
		}
	}
	return false
}
