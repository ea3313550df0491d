package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docchat/config"
	"docchat/loader/service"
	ltypes "docchat/loader/types"
	"docchat/logger"
	"docchat/model"
	"docchat/store"

	"go.uber.org/zap"
)

var (
	filePath = flag.String("file", "", "Ingest a single PDF into a fresh collection and exit")
	dirPath  = flag.String("dir", "", "Ingest every PDF of a directory into a fresh collection and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("error loading config: ", err)
	}

	l := logger.New(cfg.App.LogFilePath, cfg.App.IsProd())
	defer l.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storer, err := store.Open(ctx, store.Options{
		Backend:    cfg.Store.Backend,
		PersistDir: cfg.Store.PersistDir,
		DSN:        cfg.Store.PostgresDSN(),
		Dimensions: cfg.Store.Dimensions,
	})
	if err != nil {
		l.Fatal("error to open vector store", zap.Error(err))
	}
	defer func() {
		l.Info("closing vector store")
		if err := storer.Close(); err != nil {
			l.Error("error closing vector store", zap.Error(err))
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
		l.Fatal("error to create generator", zap.Error(err))
	}
	emb, err := model.NewEmbedder(ctx, model.Settings{
		Provider:  cfg.LLM.EmbeddingProvider,
		Model:     cfg.LLM.EmbeddingModel,
		OllamaURL: cfg.LLM.OllamaURL,
		APIKey:    cfg.LLM.GeminiAPIKey,
	})
	if err != nil {
		l.Fatal("error to create embedder", zap.Error(err))
	}

	parser := service.NewPDFParser(service.ParserConfig{
		DoclingURL:    cfg.Ingestion.DoclingURL,
		ExtractImages: cfg.Ingestion.ExtractImages,
		CropTop:       cfg.Ingestion.CropTop,
		CropBottom:    cfg.Ingestion.CropBottom,
	}, l)
	pipeline := service.NewPipeline(service.PipelineConfig{
		Chunker: service.ChunkerConfig{
			MaxCharacters:  cfg.Ingestion.MaxCharacters,
			NewAfterNChars: cfg.Ingestion.NewAfterNChars,
			Overlap:        cfg.Ingestion.Overlap,
		},
		SummaryDelay: cfg.Ingestion.SummaryDelay,
	}, parser, gen, storer, model.NewCachedEmbedder(emb, time.Hour), l)

	collection := cfg.Store.Collection
	switch {
	case *filePath != "":
		_, doc, err := pipeline.Run(ctx, *filePath, collection)
		if err != nil {
			l.Fatal("ingestion failed", zap.String("file", *filePath), zap.Error(err))
		}
		l.Info("document indexed", zap.String("title", doc.Title), zap.Int("chunks", doc.Chunks))

	case *dirPath != "":
		_, docs, err := pipeline.RunDirectory(ctx, *dirPath, collection)
		if err != nil {
			l.Fatal("ingestion failed", zap.String("dir", *dirPath), zap.Error(err))
		}
		l.Info("directory indexed", zap.Int("documents", len(docs)))

	default:
		watcher, err := service.NewWatcher(ltypes.WatchConfig{
			SourceDir:      cfg.Ingestion.SourceDir,
			ArchiveDir:     cfg.Ingestion.ArchiveDir,
			BadDir:         cfg.Ingestion.BadDir,
			Collection:     collection,
			MonitoringTime: cfg.Ingestion.MonitoringTime,
		}, pipeline, l)
		if err != nil {
			l.Fatal("error to create directories", zap.Error(err))
		}
		service.New(watcher, l).Run(ctx)
	}
}
