package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"gopherai-kbqa/internal/ai"
	"gopherai-kbqa/internal/app"
	"gopherai-kbqa/internal/apperr"
	"gopherai-kbqa/internal/cache"
	"gopherai-kbqa/internal/config"
	"gopherai-kbqa/internal/metrics"
	"gopherai-kbqa/internal/model"
	mysqlClient "gopherai-kbqa/internal/platform/mysql"
	rabbitmqClient "gopherai-kbqa/internal/platform/rabbitmq"
	redisClient "gopherai-kbqa/internal/platform/redis"
	"gopherai-kbqa/internal/prompt"
	"gopherai-kbqa/internal/repository"
	"gopherai-kbqa/internal/retrieval"
	"gopherai-kbqa/internal/vectorindex"
	"gopherai-kbqa/internal/worker"
)

type Options struct {
	// StartWorker consumes query events into MySQL. Only the API server
	// runs the consumer.
	StartWorker bool
}

type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Registry

	Index     *vectorindex.Holder
	Embedder  *ai.Embedder
	Retriever *retrieval.Retriever
	Pipeline  *app.QueryPipeline

	MySQL          *gorm.DB
	Redis          *redis.Client
	AnswerCache    *cache.AnswerCache[app.AnswerRecord]
	MQConn         *amqp.Connection
	QueryLogWorker *worker.QueryLogWorker

	StartedAt time.Time

	reloadMu sync.Mutex
}

// New loads the persisted index and wires the query pipeline. MySQL, Redis
// and RabbitMQ are connected only when enabled in cfg.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics.NewRegistry(""),
		StartedAt: time.Now(),
	}

	ix, err := a.loadIndex()
	if err != nil {
		return nil, err
	}
	a.Index = vectorindex.NewHolder(ix)
	a.Metrics.SetIndexDocuments(ix.Len())
	logger.Info("vector index loaded", "path", cfg.Index.Path, "documents", ix.Len(), "dimension", ix.Dimension())

	client := ai.NewOpenAICompatibleClient(time.Duration(cfg.LLM.TimeoutSeconds) * time.Second)
	a.Embedder = ai.NewEmbedder(client, ai.EmbeddingConfig{
		BaseURL: cfg.Embedding.BaseURL,
		APIKey:  cfg.Embedding.APIKey,
		Model:   cfg.Embedding.Model,
	}, cfg.Embedding.Dimension, cfg.Embedding.BatchSize)
	generator := ai.NewGenerator(client, ai.ChatConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
	})

	a.Retriever = retrieval.NewRetriever(a.Embedder, a.Index, retrieval.Config{
		TopK:                cfg.Retrieval.TopK,
		SimilarityThreshold: cfg.Retrieval.SimilarityThreshold,
		EdgeCaseMinScore:    cfg.Retrieval.EdgeCaseMinScore,
		Rerank:              cfg.Retrieval.Rerank,
	}, logger)
	builder := prompt.NewBuilder(cfg.Generation.MaxContextLength, logger)

	if err := a.connectDependencies(ctx, opts); err != nil {
		_ = a.Close()
		return nil, err
	}

	var answerCache app.AnswerCache
	if a.AnswerCache != nil {
		answerCache = a.AnswerCache
	}
	var publisher app.QueryEventPublisher
	if a.MQConn != nil {
		publisher = rabbitmqClient.NewQueryEventPublisher(a.MQConn, cfg.RabbitMQ.QueryQueue)
	}

	a.Pipeline = app.NewQueryPipeline(a.Retriever, builder, generator, answerCache, publisher, a.Metrics, app.PipelineConfig{
		TopK:                cfg.Retrieval.TopK,
		SimilarityThreshold: cfg.Retrieval.SimilarityThreshold,
		Temperature:         cfg.Generation.Temperature,
		MaxTokens:           cfg.Generation.MaxTokens,
		IncludeSources:      cfg.Generation.IncludeSources,
	}, logger)

	return a, nil
}

func (a *App) connectDependencies(ctx context.Context, opts Options) error {
	cfg := a.Config

	if cfg.MySQL.Enabled {
		db, err := mysqlClient.New(ctx, mysqlClient.Options{DSN: cfg.MySQLDSN(), AutoMigrate: true},
			&model.QueryLog{}, &model.EvaluationRun{})
		if err != nil {
			return err
		}
		a.MySQL = db
	}

	if cfg.Redis.Enabled {
		client, err := redisClient.New(ctx, redisClient.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		a.Redis = client
		a.AnswerCache = cache.NewAnswerCache[app.AnswerRecord](client, time.Duration(cfg.Redis.AnswerTTLSeconds)*time.Second)
	}

	if cfg.RabbitMQ.Enabled {
		conn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.QueryQueue)
		if err != nil {
			return err
		}
		a.MQConn = conn

		if opts.StartWorker && a.MySQL != nil {
			a.QueryLogWorker = worker.NewQueryLogWorker(conn, repository.NewQueryLogRepository(a.MySQL), cfg.RabbitMQ.QueryQueue, a.Logger)
			if err := a.QueryLogWorker.Start(ctx); err != nil {
				return fmt.Errorf("start query log worker failed: %w", err)
			}
		}
	}
	return nil
}

func (a *App) loadIndex() (*vectorindex.FlatIndex, error) {
	ix, err := vectorindex.Load(a.Config.Index.Path)
	if err != nil {
		return nil, err
	}
	if ix.Dimension() != a.Config.Embedding.Dimension {
		return nil, fmt.Errorf("%w: index dimension %d does not match embedding dimension %d",
			apperr.ErrConfiguration, ix.Dimension(), a.Config.Embedding.Dimension)
	}
	return ix, nil
}

// ReloadIndex swaps in the index currently on disk and drops cached
// answers. On failure the previous index stays active.
func (a *App) ReloadIndex(ctx context.Context) (int, error) {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	ix, err := a.loadIndex()
	a.Metrics.IndexReloaded(err)
	if err != nil {
		return 0, err
	}
	a.Index.Swap(ix)
	a.Metrics.SetIndexDocuments(ix.Len())

	if a.AnswerCache != nil {
		purged, err := a.AnswerCache.Purge(ctx)
		if err != nil {
			a.Logger.Warn("purge answer cache failed", "error", err)
		} else {
			a.Logger.Info("answer cache purged", "keys", purged)
		}
	}
	return ix.Len(), nil
}

// HealthChecks returns a ping per connected dependency.
func (a *App) HealthChecks() map[string]func(ctx context.Context) error {
	checks := make(map[string]func(ctx context.Context) error)
	if a.MySQL != nil {
		checks["mysql"] = func(ctx context.Context) error {
			sqlDB, err := a.MySQL.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		}
	}
	if a.MQConn != nil {
		checks["rabbitmq"] = func(ctx context.Context) error {
			if a.MQConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}
	}
	return checks
}

func (a *App) Close() error {
	var closeErr error
	if a.QueryLogWorker != nil {
		a.QueryLogWorker.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		if err := mysqlClient.Close(a.MySQL); err != nil {
			closeErr = err
		}
	}
	return closeErr
}
