// Package moderation decides whether a chat message may be published. It
// combines a fast local wordlist filter with an optional remote classifier
// and reports a single verdict tagged with the method that produced it.
package moderation

import "context"

// Severity grades how offensive a message was judged to be.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Method identifies which stage of the pipeline produced a verdict.
type Method string

const (
	MethodLexical    Method = "lexical-filter"
	MethodClassifier Method = "remote-classifier"
	MethodBothPassed Method = "both-passed"
)

// Verdict is the outcome of moderating one submission. It is never persisted.
type Verdict struct {
	Allowed  bool     `json:"allowed"`
	Reason   string   `json:"reason,omitempty"`
	Method   Method   `json:"method"`
	Severity Severity `json:"severity"`
	Detected []string `json:"detected,omitempty"`
}

// ClassifierVerdict is what a remote classifier reports for a message.
// Unavailable marks the fail-open default returned when the classifier could
// not be reached or answered with something unusable.
type ClassifierVerdict struct {
	IsProfane   bool     `json:"isProfane"`
	Severity    Severity `json:"severity"`
	Reason      string   `json:"reason"`
	Detected    []string `json:"detected"`
	Unavailable bool     `json:"-"`
}

// Classifier is the remote moderation capability. Implementations must not
// return errors: failures are folded into an Unavailable verdict.
type Classifier interface {
	Classify(ctx context.Context, text string) ClassifierVerdict
}

// Unavailable returns the fail-open verdict used whenever the remote
// classifier cannot produce an answer.
func Unavailable() ClassifierVerdict {
	return ClassifierVerdict{
		IsProfane:   false,
		Severity:    SeverityLow,
		Reason:      "moderation unavailable",
		Unavailable: true,
	}
}

// NoopClassifier allows everything. It stands in when no remote classifier is
// configured.
type NoopClassifier struct{}

// Classify always reports clean text.
func (NoopClassifier) Classify(context.Context, string) ClassifierVerdict {
	return ClassifierVerdict{Severity: SeverityLow}
}

// ParseSeverity maps a free-form severity label to a Severity.
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return Severity(s), true
	}
	return "", false
}
