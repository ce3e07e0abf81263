package fulfillment

import (
	"fmt"
	"strings"
)

// IssueKind classifies a validation or consistency finding.
type IssueKind string

const (
	// KindValidation is a defect in user input.
	KindValidation IssueKind = "validation"
	// KindDataConsistency means stored data contradicts itself, for example a
	// line received beyond its ordered quantity.
	KindDataConsistency IssueKind = "data_consistency"
	// KindPrecondition means the order cannot accept the operation at all.
	KindPrecondition IssueKind = "precondition"
)

// Issue is one finding. Line is the 1-based receipt or order line it refers
// to, or 0 for header-level findings.
type Issue struct {
	Kind    IssueKind `json:"kind"`
	Line    int       `json:"line,omitempty"`
	Message string    `json:"message"`
}

func (i Issue) Error() string {
	if i.Line > 0 {
		return fmt.Sprintf("line %d: %s", i.Line, i.Message)
	}
	return i.Message
}

// ValidationResult is the outcome of validating a receipt.
type ValidationResult struct {
	OK     bool    `json:"ok"`
	Errors []Issue `json:"errors,omitempty"`
}

func accepted() ValidationResult {
	return ValidationResult{OK: true}
}

func rejected(issues ...Issue) ValidationResult {
	return ValidationResult{OK: false, Errors: issues}
}

// Messages flattens the result into human-readable strings.
func (r ValidationResult) Messages() []string {
	out := make([]string, 0, len(r.Errors))
	for _, issue := range r.Errors {
		out = append(out, issue.Error())
	}
	return out
}

// HasKind reports whether any issue is of kind k.
func (r ValidationResult) HasKind(k IssueKind) bool {
	for _, issue := range r.Errors {
		if issue.Kind == k {
			return true
		}
	}
	return false
}

func (r ValidationResult) String() string {
	if r.OK {
		return "ok"
	}
	return strings.Join(r.Messages(), "; ")
}
