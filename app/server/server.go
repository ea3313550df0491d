package server

import (
	"context"
	"sync"
	"time"

	"docchat/app/agent"
	"docchat/app/api"
	"docchat/app/middleware"
	"docchat/config"
	"docchat/generation"
	"docchat/loader/service"
	"docchat/memory"
	"docchat/model"
	"docchat/router"
	"docchat/store"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

const (
	shutdownTimeout = 10 * time.Second
	embeddingTTL    = time.Hour
)

type Server struct {
	cfg    *config.Config
	logger *zap.Logger
}

func NewServer(cfg *config.Config, log *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: log.Named("server"),
	}
}

// Run wires the assistant, serves HTTP and shuts down when ctx ends.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.cfg

	storer, err := store.Open(ctx, store.Options{
		Backend:    cfg.Store.Backend,
		PersistDir: cfg.Store.PersistDir,
		DSN:        cfg.Store.PostgresDSN(),
		Dimensions: cfg.Store.Dimensions,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := storer.Close(); err != nil {
			s.logger.Error("error closing vector store", zap.Error(err))
		}
	}()

	gen, err := model.NewGenerator(ctx, model.Settings{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		OllamaURL:   cfg.LLM.OllamaURL,
		APIKey:      cfg.LLM.GeminiAPIKey,
	})
	if err != nil {
		return err
	}
	emb, err := model.NewEmbedder(ctx, model.Settings{
		Provider:  cfg.LLM.EmbeddingProvider,
		Model:     cfg.LLM.EmbeddingModel,
		OllamaURL: cfg.LLM.OllamaURL,
		APIKey:    cfg.LLM.GeminiAPIKey,
	})
	if err != nil {
		return err
	}

	pipeline := service.NewPipeline(service.PipelineConfig{
		Chunker: service.ChunkerConfig{
			MaxCharacters:  cfg.Ingestion.MaxCharacters,
			NewAfterNChars: cfg.Ingestion.NewAfterNChars,
			Overlap:        cfg.Ingestion.Overlap,
		},
		SummaryDelay: cfg.Ingestion.SummaryDelay,
	}, service.NewPDFParser(service.ParserConfig{
		DoclingURL:    cfg.Ingestion.DoclingURL,
		ExtractImages: cfg.Ingestion.ExtractImages,
		CropTop:       cfg.Ingestion.CropTop,
		CropBottom:    cfg.Ingestion.CropBottom,
	}, s.logger), gen, storer, model.NewCachedEmbedder(emb, embeddingTTL), s.logger)

	userMem := memory.NewFileStore(cfg.Memory.UserPath, "User")
	companyMem := memory.NewFileStore(cfg.Memory.CompanyPath, "Company")

	a := agent.New(agent.Config{Collection: cfg.Store.Collection, TopK: cfg.Store.TopK},
		router.New(gen, s.logger),
		generation.NewDispatcher(gen, userMem, companyMem, s.logger,
			generation.WithTokenCounter(model.NewTiktokenCounter())),
		memory.NewManager(memory.NewExtractor(gen, s.logger), userMem, companyMem,
			cfg.Memory.ConfidenceThreshold, s.logger),
		pipeline, s.logger)

	app := s.newApp(a, userMem, companyMem)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server started", zap.String("addr", cfg.App.ServerAddr))
		errCh <- app.Listen(cfg.App.ServerAddr)
	}()

	select {
	case err := <-errCh:
		s.logger.Error("error to start server", zap.Error(err))
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		s.logger.Error("error during shutdown", zap.Error(err))
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) newApp(a *agent.Agent, userMem, companyMem *memory.FileStore) *fiber.App {
	var (
		app = fiber.New(fiber.Config{
			ErrorHandler:          api.NewErrorHandler(s.logger),
			DisableStartupMessage: true,
		})
		turnLock        sync.Mutex
		serialize       = middleware.Serialize(&turnLock)
		checkHandler    = api.NewCheckHandler()
		chatHandler     = api.NewChatHandler(a)
		documentHandler = api.NewDocumentHandler(a, s.cfg.App.UploadDir)
		memoryHandler   = api.NewMemoryHandler(userMem, companyMem)
		check           = app.Group("/check")
		apiv1           = app.Group("/api/v1")
	)
	app.Use(recover.New())

	check.Get("/healthy", checkHandler.HandleHealthy)

	apiv1.Post("/chat", serialize, chatHandler.HandleChat)
	apiv1.Post("/documents", serialize, documentHandler.HandleUpload)
	apiv1.Get("/documents", documentHandler.HandleStatus)
	apiv1.Get("/memory", memoryHandler.HandleGet)
	apiv1.Delete("/memory", serialize, memoryHandler.HandleClear)

	return app
}
