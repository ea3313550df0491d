package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Service runs the folder watcher and the file processor until its
// context is cancelled.
type Service struct {
	logger  *zap.Logger
	watcher *Watcher
}

func New(watcher *Watcher, logger *zap.Logger) *Service {
	return &Service{
		logger:  logger.Named("loader"),
		watcher: watcher,
	}
}

func (s *Service) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fileChan := make(chan string, 10)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(fileChan)
		s.watcher.WatchFile(ctx, fileChan)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.watcher.ProcessFile(ctx, fileChan)
	}()

	s.logger.Info("loader service started")
	<-ctx.Done()
	s.logger.Info("shutting down gracefully")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("all goroutines stopped")
	case <-time.After(shutdownTimeout):
		s.logger.Warn("timeout waiting for goroutines to stop")
	}
	s.logger.Info("loader service stopped")
}
