package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openshelf-dev/openshelf/internal/config"
	"github.com/openshelf-dev/openshelf/internal/core"
	db "github.com/openshelf-dev/openshelf/internal/core/database"
	"github.com/openshelf-dev/openshelf/internal/core/ingestion_engine"
	"github.com/openshelf-dev/openshelf/internal/core/llm"
	objectclient "github.com/openshelf-dev/openshelf/internal/core/object-client"
	"github.com/openshelf-dev/openshelf/internal/core/pagereader"
	"github.com/openshelf-dev/openshelf/internal/services"
)

type App struct {
	DBClient     core.DbClient
	ObjectClient core.ObjectClient
	Pipeline     ingestion_engine.Ingestor
	Server       *Server
	Log          *zap.Logger
}

func NewApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("database initialized and ready")

	objClient, err := objectclient.NewS3Client(appCtx, cfg, log)
	if err != nil {
		return nil, err
	}

	geminiEmbedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}

	opener := pagereader.NewFitzOpener(core.DefaultResolutions, cfg.RenderQuality)

	ingCfg := &ingestion_engine.IngestConfig{
		MaxTokens:     cfg.ChunkMaxTokens,
		OverlapTokens: cfg.OverlapTokens,
		BatchSize:     cfg.EmbedBatchSize,
		MaxPages:      cfg.MaxSyncPages,
		Resolutions:   core.DefaultResolutions,
		RenderQuality: cfg.RenderQuality,
	}

	pipeline, err := ingestion_engine.NewIngestionPipeline(dbClient, objClient, geminiEmbedder, opener, ingCfg, log)
	if err != nil {
		return nil, fmt.Errorf("build ingestion pipeline: %w", err)
	}

	urlTTL := time.Duration(cfg.SignedURLTTL) * time.Second
	docService := services.NewDocumentService(dbClient, objClient, urlTTL)
	retrievalService := services.NewRetrievalService(dbClient, geminiEmbedder)

	server := NewServer(cfg, docService, retrievalService, pipeline, log)

	return &App{
		DBClient:     dbClient,
		ObjectClient: objClient,
		Pipeline:     pipeline,
		Server:       server,
		Log:          log,
	}, nil
}

func (a *App) Close() {
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
