package memory

import (
	"context"
	"errors"

	"docchat/types"

	"go.uber.org/zap"
)

const DefaultConfidenceThreshold = 0.7

// Manager runs extraction, the confidence gate and both writes for a turn.
type Manager struct {
	extractor *Extractor
	user      *FileStore
	company   *FileStore
	threshold float64
	logger    *zap.Logger
}

func NewManager(extractor *Extractor, user, company *FileStore, threshold float64, logger *zap.Logger) *Manager {
	return &Manager{
		extractor: extractor,
		user:      user,
		company:   company,
		threshold: threshold,
		logger:    logger.Named("memory_manager"),
	}
}

func (m *Manager) Process(ctx context.Context, userMessage, assistantResponse string) (types.MemoryResult, error) {
	return m.ProcessWithThreshold(ctx, userMessage, assistantResponse, m.threshold)
}

// ProcessWithThreshold gates on an explicit threshold. The two stores are
// written independently; a failed write is reported but does not stop the
// other one.
func (m *Manager) ProcessWithThreshold(ctx context.Context, userMessage, assistantResponse string, threshold float64) (types.MemoryResult, error) {
	decision := m.extractor.Extract(ctx, userMessage, assistantResponse)

	result := types.MemoryResult{Confidence: decision.Confidence}

	if !decision.ShouldSave || decision.Confidence < threshold {
		m.logger.Info("memory skipped",
			zap.Bool("should_save", decision.ShouldSave),
			zap.Float64("confidence", decision.Confidence),
			zap.Float64("threshold", threshold))
		return result, nil
	}

	var errs []error
	if len(decision.UserFacts) > 0 {
		n, err := AppendFacts(m.user, decision.UserFacts)
		if err != nil {
			errs = append(errs, err)
		}
		result.UserFactsWritten = n
	}
	if len(decision.CompanyFacts) > 0 {
		n, err := AppendFacts(m.company, decision.CompanyFacts)
		if err != nil {
			errs = append(errs, err)
		}
		result.CompanyFactsWritten = n
	}
	result.MemorySaved = result.UserFactsWritten > 0 || result.CompanyFactsWritten > 0

	m.logger.Info("memory result",
		zap.Bool("saved", result.MemorySaved),
		zap.Int("user", result.UserFactsWritten),
		zap.Int("company", result.CompanyFactsWritten))
	return result, errors.Join(errs...)
}

// Stores exposes the user and company handles for rendering and clearing.
func (m *Manager) Stores() (user, company *FileStore) {
	return m.user, m.company
}
