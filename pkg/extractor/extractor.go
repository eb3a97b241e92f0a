package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"golang.org/x/time/rate"

	"github.com/ktsuji/budgetscan/internal/models"
	"github.com/ktsuji/budgetscan/pkg/retry"
	"github.com/ktsuji/budgetscan/pkg/source"
)

// ExtractorConfig represents the configuration for a record extractor.
type ExtractorConfig struct {
	BaseURL     string // OpenAI-compatible server URL, empty for api.openai.com
	Token       string
	Model       string
	Temperature float64
	MaxTokens   int
	RateLimit   float64 // reasoning calls per second
	MaxAttempts int     // attempts per reasoning call, transient failures only
	RetryDelay  time.Duration
	CallTimeout time.Duration
}

// Extractor turns budget document segments into structured records
// using an LLM reasoning call constrained to a JSON schema.
type Extractor struct {
	config  ExtractorConfig
	llm     llms.Model
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewWithConfig creates a new Extractor with the given configuration.
func NewWithConfig(config ExtractorConfig) (*Extractor, error) {
	if config.Token == "" {
		return nil, ErrTokenRequired
	}

	opts := []openai.Option{
		openai.WithToken(config.Token),
		openai.WithModel(config.Model),
	}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return NewWithModel(config, llm), nil
}

// NewWithModel creates an Extractor around an existing model. Used
// by tests and by callers that manage their own client.
func NewWithModel(config ExtractorConfig, llm llms.Model) *Extractor {
	if config.Model == "" {
		config.Model = "gpt-3.5-turbo-16k"
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 3
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = time.Second
	}
	if config.CallTimeout == 0 {
		config.CallTimeout = 60 * time.Second
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	return &Extractor{
		config:  config,
		llm:     llm,
		limiter: limiter,
		logger:  slog.Default().With("component", "extractor"),
	}
}

// Extract runs one reasoning call over a single segment and parses
// the returned payload into a validated BudgetRecord. The call is
// retried with backoff on transport failures; a payload that does
// not conform to the schema fails immediately.
func (e *Extractor) Extract(ctx context.Context, text string) (models.BudgetRecord, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return models.BudgetRecord{}, &ExtractionError{Reason: "rate limiter interrupted", Err: err}
		}
	}

	content := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, extractionPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, text),
	}

	var response *llms.ContentResponse
	call := func() error {
		callCtx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
		defer cancel()

		resp, err := e.llm.GenerateContent(callCtx, content,
			llms.WithTemperature(e.config.Temperature),
			llms.WithMaxTokens(e.config.MaxTokens),
			llms.WithJSONMode())
		if err != nil {
			return err
		}
		response = resp
		return nil
	}

	if err := retry.WithBackoff(ctx, call, e.config.MaxAttempts, e.config.RetryDelay); err != nil {
		return models.BudgetRecord{}, &ExtractionError{Reason: "reasoning call failed", Err: err}
	}

	if len(response.Choices) == 0 {
		return models.BudgetRecord{}, &ExtractionError{Reason: "empty response from model"}
	}

	record, err := parseRecord(response.Choices[0].Content)
	if err != nil {
		return models.BudgetRecord{}, &ExtractionError{Reason: "malformed payload", Err: err}
	}

	return record, nil
}

// ExtractBatch applies Extract to every segment of a document,
// returning one result per segment in source order. A failed
// segment is captured in its result and logged with the document
// name and segment index; siblings are unaffected.
func (e *Extractor) ExtractBatch(ctx context.Context, doc models.Document) []models.SegmentResult {
	segments := source.SplitSegments(doc.Text)

	results := make([]models.SegmentResult, 0, len(segments))
	for i, segment := range segments {
		record, err := e.Extract(ctx, segment)
		if err != nil {
			e.logger.Warn("segment extraction failed",
				"document", doc.Name, "segment", i, "err", err)
		}
		results = append(results, models.SegmentResult{
			Document: doc.Name,
			Segment:  i,
			Record:   record,
			Err:      err,
		})
	}
	return results
}
