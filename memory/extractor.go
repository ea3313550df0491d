package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"docchat/model"
	"docchat/types"

	"go.uber.org/zap"
)

const extractorSystem = "You are a memory curator. Respond ONLY with valid JSON."

const extractionPrompt = `Given the following conversation turn, decide if any HIGH-SIGNAL facts should be saved to persistent memory.

HIGH-SIGNAL facts include:
- User preferences (e.g., "I prefer Python over Java")
- Stated expertise or role (e.g., "I'm a data scientist at Acme Corp")
- Project-specific decisions (e.g., "We chose PostgreSQL for the backend")
- Organizational policies or standards
- Repeated topics or interests

LOW-SIGNAL information to IGNORE:
- Generic greetings or small talk
- Questions without factual content
- Transient information (e.g., "what time is it")
- Facts the assistant merely recited from existing memory

CONVERSATION TURN:
User: %s
Assistant: %s

If there are facts worth saving, respond with a JSON object:
{
  "should_save": true,
  "user_facts": ["fact1", "fact2"],
  "company_facts": ["fact1"],
  "confidence": 0.85
}

If nothing is worth saving, respond with:
{
  "should_save": false,
  "user_facts": [],
  "company_facts": [],
  "confidence": 0.0
}

Respond ONLY with the JSON object, no other text.`

// Extractor asks the model which facts of a turn are worth keeping.
type Extractor struct {
	gen    model.Generator
	logger *zap.Logger
}

func NewExtractor(gen model.Generator, logger *zap.Logger) *Extractor {
	return &Extractor{gen: gen, logger: logger.Named("memory_extractor")}
}

// Extract never fails: a model error or an unusable response yields the
// zero decision.
func (e *Extractor) Extract(ctx context.Context, userMessage, assistantResponse string) types.MemoryDecision {
	start := time.Now()
	messages := []model.Message{
		model.System(extractorSystem),
		model.User(fmt.Sprintf(extractionPrompt, userMessage, assistantResponse)),
	}

	raw, err := e.gen.Invoke(ctx, messages)
	if err != nil {
		e.logger.Warn("memory extraction failed", zap.Error(err))
		return types.MemoryDecision{}
	}

	decision, err := ParseDecision(raw)
	if err != nil {
		e.logger.Warn("failed to parse memory decision", zap.Error(err), zap.String("raw", raw))
		return types.MemoryDecision{}
	}

	e.logger.Info("memory decision",
		zap.Bool("should_save", decision.ShouldSave),
		zap.Float64("confidence", decision.Confidence),
		zap.Int("user_facts", len(decision.UserFacts)),
		zap.Int("company_facts", len(decision.CompanyFacts)),
		zap.Duration("took", time.Since(start)))
	return decision
}

// ParseDecision decodes a single JSON object, optionally wrapped in a code
// fence, into a validated decision.
func ParseDecision(raw string) (types.MemoryDecision, error) {
	body := model.StripCodeFence(raw)

	var d types.MemoryDecision
	dec := json.NewDecoder(strings.NewReader(body))
	if err := dec.Decode(&d); err != nil {
		return types.MemoryDecision{}, fmt.Errorf("decode: %w", err)
	}
	if dec.More() {
		return types.MemoryDecision{}, fmt.Errorf("decode: trailing data after JSON object")
	}
	if err := types.ValidateDecision(&d); err != nil {
		return types.MemoryDecision{}, fmt.Errorf("validate: %w", err)
	}

	if d.UserFacts == nil {
		d.UserFacts = []string{}
	}
	if d.CompanyFacts == nil {
		d.CompanyFacts = []string{}
	}
	return d, nil
}
