package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// DefaultClassifierTimeout bounds a single remote classification.
const DefaultClassifierTimeout = 5 * time.Second

const classifierPrompt = `You are a content moderator for a public Indonesian/English chat board.
Decide whether the user's message contains profanity, slurs, sexual content, harassment or hate speech,
including obfuscated spellings and leetspeak.
Reply with JSON only, exactly in this shape:
{"isProfane": true|false, "severity": "low"|"medium"|"high", "reason": "<short reason>", "detected": ["<term>", ...]}`

// LLMConfig configures an OpenAI-compatible chat completion endpoint used as
// the remote classifier.
type LLMConfig struct {
	APIKey     string
	BaseURL    string // e.g. https://api.groq.com/openai/v1; empty uses the provider default
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// LLMClassifier asks a language model to grade a message. Any failure, be it
// transport, timeout or an unparseable answer, yields Unavailable(), so chat
// keeps working when the provider is down.
type LLMClassifier struct {
	model   llms.Model
	timeout time.Duration
}

// NewLLMClassifier builds a classifier backed by langchaingo's OpenAI client.
func NewLLMClassifier(cfg LLMConfig) (*LLMClassifier, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("moderation: api key is required")
	}
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
	}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, openai.WithHTTPClient(cfg.HTTPClient))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	return NewLLMClassifierFromModel(llm, cfg.Timeout), nil
}

// NewLLMClassifierFromModel wraps an existing llms.Model. A timeout <= 0
// falls back to DefaultClassifierTimeout.
func NewLLMClassifierFromModel(m llms.Model, timeout time.Duration) *LLMClassifier {
	if timeout <= 0 {
		timeout = DefaultClassifierTimeout
	}
	return &LLMClassifier{model: m, timeout: timeout}
}

// Classify implements Classifier. It makes exactly one call and never retries.
func (c *LLMClassifier) Classify(ctx context.Context, text string) ClassifierVerdict {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.model.GenerateContent(ctx,
		[]llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, classifierPrompt),
			llms.TextParts(llms.ChatMessageTypeHuman, text),
		},
		llms.WithTemperature(0),
		llms.WithMaxTokens(256),
		llms.WithJSONMode(),
	)
	if err != nil {
		log.Warn().Err(err).Msg("moderation classifier request failed; allowing")
		classifierUnavailable.Inc()
		return Unavailable()
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		log.Warn().Msg("moderation classifier returned no choices; allowing")
		classifierUnavailable.Inc()
		return Unavailable()
	}

	v, err := parseClassifierReply(resp.Choices[0].Content)
	if err != nil {
		log.Warn().Err(err).Msg("moderation classifier reply unusable; allowing")
		classifierUnavailable.Inc()
		return Unavailable()
	}
	return v
}

// parseClassifierReply extracts the JSON object from a model reply, tolerating
// code fences or prose around it.
func parseClassifierReply(content string) (ClassifierVerdict, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ClassifierVerdict{}, errors.New("no json object in reply")
	}

	var raw struct {
		IsProfane *bool    `json:"isProfane"`
		Severity  string   `json:"severity"`
		Reason    string   `json:"reason"`
		Detected  []string `json:"detected"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return ClassifierVerdict{}, err
	}
	if raw.IsProfane == nil {
		return ClassifierVerdict{}, errors.New("isProfane missing")
	}

	sev := Severity(strings.ToLower(strings.TrimSpace(raw.Severity)))
	switch {
	case sev == "" && *raw.IsProfane:
		sev = SeverityMedium
	case sev == "":
		sev = SeverityLow
	default:
		var ok bool
		if sev, ok = ParseSeverity(string(sev)); !ok {
			return ClassifierVerdict{}, errors.New("unknown severity " + raw.Severity)
		}
	}

	return ClassifierVerdict{
		IsProfane: *raw.IsProfane,
		Severity:  sev,
		Reason:    strings.TrimSpace(raw.Reason),
		Detected:  raw.Detected,
	}, nil
}
