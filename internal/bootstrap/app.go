package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	"research-backend/internal/analysis"
	"research-backend/internal/classify"
	"research-backend/internal/documents"
	"research-backend/internal/extraction"
	"research-backend/internal/insights"
	"research-backend/internal/llm"
	openai "research-backend/internal/llm/openai"
	"research-backend/internal/queue"
	"research-backend/internal/services/health"
	"research-backend/internal/shared/config"
	"research-backend/internal/shared/server"
	"research-backend/internal/shared/storage/db"
	"research-backend/internal/shared/storage/object"
	localstore "research-backend/internal/shared/storage/object/local"
	s3store "research-backend/internal/shared/storage/object/s3"
	"research-backend/internal/shared/telemetry"
	"research-backend/internal/tags"
)

// App holds shared dependencies for the API, the worker and the CLI.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore
	Queue  queue.Client

	DocumentsRepo documents.Repo
	SessionsRepo  extraction.SessionRepo
	InsightsRepo  insights.Repo
	TagsRepo      tags.Repo
	TagIndex      tags.EmbeddingIndex

	Scorer            *classify.Scorer
	DocumentsService  *documents.Service
	InsightsService   *insights.Service
	TagsService       *tags.Service
	Resolver          *tags.Resolver
	Orchestrator      *extraction.Orchestrator
	AnalysisService   *analysis.Service
	AnalysisProcessor AnalysisProcessor
	HealthService     *health.Service

	DocumentsHandler *documents.Handler
	AnalysisHandler  *analysis.Handler
	SessionsHandler  *extraction.Handler
	InsightsHandler  *insights.Handler
	TagsHandler      *tags.Handler

	closers []io.Closer
}

// AnalysisProcessor allows callers to override queue processing for tests.
type AnalysisProcessor interface {
	ProcessMessage(ctx context.Context, msg queue.Message) error
}

// Build prepares shared dependencies and the HTTP router. ctx bounds
// background work such as the rule file watcher.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	return BuildWithOptions(ctx, cfg, db.DefaultServerOptions())
}

// BuildWithOptions is Build with explicit database pool defaults; the worker
// sizes its pool to its concurrency.
func BuildWithOptions(ctx context.Context, cfg config.Config, dbOpts db.Options) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}

	sqlDB, err := buildDB(ctx, cfg, dbOpts)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Queue:  queueClient,
	}
	if sqlDB != nil {
		app.closers = append(app.closers, sqlDB)
	}

	if err := buildServices(ctx, app); err != nil {
		app.Close()
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		Health:          app.HealthService,
		DocumentHandler: app.DocumentsHandler,
		AnalysisHandler: app.AnalysisHandler,
		SessionHandler:  app.SessionsHandler,
		InsightHandler:  app.InsightsHandler,
		TagHandler:      app.TagsHandler,
	})

	return app, nil
}

// Close releases the database and any local index files.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func buildDB(ctx context.Context, cfg config.Config, defaults db.Options) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(defaults))
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.QueueURL) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx, cfg.QueueURL, cfg.AWSRegion)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

// buildLLM returns the reasoning and embedding clients. ok is false when no
// provider is configured and the placeholder stands in.
func buildLLM(ctx context.Context, cfg config.Config) (llm.Reasoner, llm.Embedder, bool, error) {
	if cfg.LLMProvider != "openai" {
		return llm.PlaceholderClient{}, llm.PlaceholderClient{}, false, nil
	}
	oauth := openai.OAuthConfig{
		TokenURL:     cfg.OAuthTokenURL,
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
		Scopes:       cfg.OAuthScopes,
	}
	if strings.TrimSpace(cfg.LLMAPIKey) == "" && !oauth.Enabled() {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: OPENAI_API_KEY empty; reasoning calls will fail")
			return llm.PlaceholderClient{}, llm.PlaceholderClient{}, false, nil
		}
		return nil, nil, false, fmt.Errorf("OPENAI_API_KEY or LLM_OAUTH_TOKEN_URL is required")
	}

	opts := openai.Options{
		APIKey:            cfg.LLMAPIKey,
		Model:             cfg.LLMModel,
		EmbeddingModel:    cfg.EmbeddingModel,
		BaseURL:           cfg.LLMBaseURL,
		RequestsPerSecond: cfg.LLMRequestsPerSecond,
		Burst:             cfg.LLMBurst,
	}
	if oauth.Enabled() {
		opts.HTTPClient = openai.NewOAuthHTTPClient(ctx, oauth)
	}
	client, err := openai.NewClientWithOptions(opts)
	if err != nil {
		return nil, nil, false, err
	}
	return client, llm.NewRetryingEmbedder(client), true, nil
}

func buildScorer(ctx context.Context, cfg config.Config) (*classify.Scorer, error) {
	path := strings.TrimSpace(cfg.ClassifyRulesPath)
	if path == "" {
		table, err := classify.DefaultTable()
		if err != nil {
			return nil, err
		}
		return classify.NewScorer(table), nil
	}
	table, err := classify.LoadTableFile(path)
	if err != nil {
		return nil, fmt.Errorf("load classification rules: %w", err)
	}
	scorer := classify.NewScorer(table)
	go func() {
		if err := classify.WatchRules(ctx, path, scorer); err != nil {
			telemetry.Warn("classify.rules.watch_disabled", map[string]any{"path": path, "error": err})
		}
	}()
	return scorer, nil
}

func buildRubrics(cfg config.Config) (*extraction.RubricTable, error) {
	if strings.TrimSpace(cfg.LegacyRubricsPath) == "" {
		return extraction.DefaultRubricTable()
	}
	table, err := extraction.LoadRubrics(cfg.LegacyRubricsPath)
	if err != nil {
		return nil, fmt.Errorf("load legacy rubrics: %w", err)
	}
	return table, nil
}

func (a *App) buildTagIndex(ctx context.Context) (tags.EmbeddingIndex, error) {
	kind := a.Config.TagIndex
	if kind == "" {
		kind = "memory"
		if a.DB != nil {
			kind = "postgres"
		}
	}
	switch kind {
	case "postgres":
		if a.DB == nil {
			return nil, fmt.Errorf("TAG_INDEX=postgres requires DATABASE_URL")
		}
		return &tags.PGIndex{DB: a.DB, Model: a.Config.EmbeddingModel}, nil
	case "sqlite":
		idx, err := tags.OpenSQLiteIndex(ctx, a.Config.TagIndexSQLitePath, a.Config.EmbeddingModel)
		if err != nil {
			return nil, fmt.Errorf("open tag index: %w", err)
		}
		a.closers = append(a.closers, idx)
		return idx, nil
	default:
		return tags.NewMemoryIndex(), nil
	}
}

func buildServices(ctx context.Context, app *App) error {
	cfg := app.Config
	if app.DB != nil {
		app.DocumentsRepo = &documents.PGRepo{DB: app.DB}
		app.SessionsRepo = &extraction.PGRepo{DB: app.DB}
		app.InsightsRepo = &insights.PGRepo{DB: app.DB}
		app.TagsRepo = &tags.PGRepo{DB: app.DB}
	} else {
		app.DocumentsRepo = documents.NewMemoryRepo()
		app.SessionsRepo = extraction.NewMemoryRepo()
		app.InsightsRepo = insights.NewMemoryRepo()
		app.TagsRepo = tags.NewMemoryRepo()
	}

	reasoner, embedder, live, err := buildLLM(ctx, cfg)
	if err != nil {
		return err
	}

	scorer, err := buildScorer(ctx, cfg)
	if err != nil {
		return err
	}
	rubrics, err := buildRubrics(cfg)
	if err != nil {
		return err
	}

	index, err := app.buildTagIndex(ctx)
	if err != nil {
		return err
	}
	var (
		matcher     *tags.Matcher
		generalizer *tags.Generalizer
	)
	if live {
		matcher = tags.NewMatcher(app.TagsRepo, index, embedder, cfg.TagTopK)
		generalizer = tags.NewGeneralizer(reasoner, cfg.StepTimeout)
	}

	chain := &extraction.ChainStrategy{
		Steps:    extraction.DefaultChain(),
		Executor: extraction.NewStepExecutor(reasoner, cfg.StepAttempts, cfg.StepTimeout),
		Budget:   cfg.SessionBudget,
	}
	legacy := &extraction.LegacyStrategy{Reasoner: reasoner, Rubrics: rubrics, Timeout: cfg.LegacyTimeout}

	app.TagIndex = index
	app.Scorer = scorer
	app.DocumentsService = &documents.Service{Store: app.Store, Repo: app.DocumentsRepo}
	app.InsightsService = &insights.Service{Repo: app.InsightsRepo}
	app.TagsService = &tags.Service{Repo: app.TagsRepo}
	app.Resolver = tags.NewResolver(app.TagsRepo, matcher, generalizer)
	app.Orchestrator = extraction.NewOrchestrator(chain, legacy, app.SessionsRepo)
	app.AnalysisService = &analysis.Service{
		Documents:   app.DocumentsService,
		Store:       app.Store,
		Scorer:      scorer,
		Router:      classify.NewRouter(app.DocumentsRepo),
		Extractor:   app.Orchestrator,
		Insights:    app.InsightsService,
		Tags:        app.Resolver,
		Queue:       app.Queue,
		Concurrency: cfg.AnalysisConcurrency,
	}
	app.AnalysisProcessor = app.AnalysisService
	app.HealthService = health.NewService(app.DB)

	app.DocumentsHandler = documents.NewHandler(app.DocumentsService)
	app.AnalysisHandler = analysis.NewHandler(app.AnalysisService, app.SessionsRepo)
	app.SessionsHandler = extraction.NewHandler(app.SessionsRepo)
	app.InsightsHandler = insights.NewHandler(app.InsightsService)
	app.TagsHandler = tags.NewHandler(app.TagsService)

	if app.DocumentsHandler == nil || app.AnalysisHandler == nil {
		return errors.New("failed to initialize handlers")
	}
	return nil
}
