package moderation

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	lexicalReason    = "Message contains inappropriate language"
	classifierReason = "Message was flagged by content moderation"
)

// Pipeline runs the lexical filter and, only if it passes, the remote
// classifier. It short-circuits on the first rejection and never retries.
type Pipeline struct {
	lexical    *LexicalFilter
	classifier Classifier
}

// NewPipeline composes the two gates. A nil classifier behaves like
// NoopClassifier.
func NewPipeline(lexical *LexicalFilter, classifier Classifier) *Pipeline {
	if classifier == nil {
		classifier = NoopClassifier{}
	}
	return &Pipeline{lexical: lexical, classifier: classifier}
}

// Moderate returns the verdict for text, which must already be sanitized.
func (p *Pipeline) Moderate(ctx context.Context, text string) Verdict {
	ctx, span := otel.Tracer("moderation/Pipeline").Start(ctx, "Moderate")
	defer span.End()

	v := p.decide(ctx, text)
	span.SetAttributes(
		attribute.String("moderation.method", string(v.Method)),
		attribute.Bool("moderation.allowed", v.Allowed),
	)
	decisions.WithLabelValues(string(v.Method), strconv.FormatBool(v.Allowed)).Inc()
	return v
}

func (p *Pipeline) decide(ctx context.Context, text string) Verdict {
	if hits := p.lexical.Detect(text); len(hits) > 0 {
		return Verdict{
			Allowed:  false,
			Reason:   lexicalReason,
			Method:   MethodLexical,
			Severity: SeverityHigh,
			Detected: hits,
		}
	}

	cv := p.classifier.Classify(ctx, text)
	if cv.IsProfane {
		sev := cv.Severity
		if sev == "" {
			sev = SeverityMedium
		}
		reason := cv.Reason
		if reason == "" {
			reason = classifierReason
		}
		return Verdict{
			Allowed:  false,
			Reason:   reason,
			Method:   MethodClassifier,
			Severity: sev,
			Detected: cv.Detected,
		}
	}

	return Verdict{
		Allowed:  true,
		Method:   MethodBothPassed,
		Severity: SeverityLow,
	}
}
