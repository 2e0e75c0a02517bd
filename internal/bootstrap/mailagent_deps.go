// Package bootstrap wires configuration, storage, services and transports
// into a running process. Dependencies are built once and shared between the
// API server and the worker fleet; the job queue is in-memory, so splitting
// them across two dependency graphs would strand every enqueued job.
package bootstrap

import (
	"context"

	"mailagent_server/adapter/in/worker"
	"mailagent_server/adapter/out/cache"
	"mailagent_server/adapter/out/persistence"
	"mailagent_server/adapter/out/provider"
	"mailagent_server/config"
	"mailagent_server/core/agent/tools"
	"mailagent_server/core/domain"
	"mailagent_server/core/port/out"
	"mailagent_server/core/service/archive"
	"mailagent_server/core/service/auth"
	"mailagent_server/core/service/bulk"
	"mailagent_server/core/service/categorize"
	"mailagent_server/core/service/cleanup"
	"mailagent_server/core/service/ingest"
	"mailagent_server/core/service/jobs"
	"mailagent_server/core/service/search"
	"mailagent_server/infra/database"
	"mailagent_server/pkg/metrics"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

type Dependencies struct {
	Config *config.Config
	Redis  *redis.Client // nil when REDIS_URL is unset

	// Storage
	Registry out.StoreRegistry
	Shared   out.EmailStore
	JobStore *persistence.JobStoreAdapter
	Queue    out.JobQueue
	Cache    out.Cache
	ACL      out.FileACL
	Tracker  out.AccessTracker
	Searches out.SearchStore
	Archives out.ArchiveStore
	Policies out.PolicyStore

	// Providers
	Gmail *provider.GmailProvider // nil without Google credentials

	// Services
	Sessions *auth.SessionService
	Engine   *categorize.Engine
	Exporter *archive.Exporter
	Mutator  *bulk.Mutator
	Search   *search.SearchEngine
	Cleanup  *cleanup.Service
	Ingester *ingest.Ingester
	Jobs     *jobs.Service

	// Agent surface
	Tools *tools.Registry

	// Worker counters, shared with the health endpoints
	Stats *metrics.WorkerStats
}

// NewDependencies builds the full dependency graph. The returned cleanup
// runs release steps in reverse construction order; on a construction error
// the steps registered so far are run before returning.
func NewDependencies(cfg *config.Config, log zerolog.Logger) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()

	runCleanups := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		runCleanups()
		return nil, nil, err
	}

	ctx := context.Background()

	// Per-user store registry (one SQLite file per user under StoragePath).
	registry, err := persistence.NewStoreRegistry(cfg.StoragePath, log)
	if err != nil {
		return fail(err)
	}
	deps.Registry = registry
	cleanups = append(cleanups, func() {
		if err := registry.Cleanup(); err != nil {
			log.Warn().Err(err).Msg("store registry close failed")
		}
	})

	// Shared store: cross-user rows (job index, file metadata, ACL grants).
	shared, err := registry.Shared(ctx)
	if err != nil {
		return fail(err)
	}
	deps.Shared = shared

	jobStore, err := persistence.NewJobStore(ctx, shared, log)
	if err != nil {
		return fail(err)
	}
	deps.JobStore = jobStore

	queue := worker.NewQueue()
	deps.Queue = queue
	cleanups = append(cleanups, queue.Stop)

	// Cache: Redis when configured, otherwise in-process. A Redis connect
	// failure downgrades to memory so the server still comes up.
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("redis connection failed, falling back to memory cache")
		} else {
			deps.Redis = redisClient
			deps.Cache = cache.NewRedisCache(redisClient)
		}
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewMemoryCache()
	}
	// RedisCache.Close also closes the client, so only the cache is registered.
	cleanups = append(cleanups, func() {
		if err := deps.Cache.Close(); err != nil {
			log.Warn().Err(err).Msg("cache close failed")
		}
	})

	aclCfg := domain.DefaultFileACLConfig()
	deps.ACL = persistence.NewFileACLRegistry(registry, aclCfg, log)
	deps.Tracker = persistence.NewAccessTrackerRegistry(registry, log)

	deps.Searches = persistence.NewSearchStore(registry)
	deps.Archives = persistence.NewArchiveStore(registry)
	deps.Policies = persistence.NewPolicyStore(registry)

	exporter, err := archive.NewExporter(archive.ExporterConfig{
		BaseDir:       cfg.ArchivePath,
		Encrypt:       aclCfg.RequireEncryption,
		EncryptionKey: []byte(cfg.JWTSecret),
	}, nil, deps.ACL, deps.Archives, log)
	if err != nil {
		return fail(err)
	}
	deps.Exporter = exporter

	engineCfg := categorize.DefaultEngineConfig()
	engineCfg.EnableParallel = cfg.AnalysisParallel
	if cfg.AnalysisTimeout > 0 {
		engineCfg.Timeout = cfg.AnalysisTimeout
	}
	deps.Engine = categorize.NewEngine(&categorize.EngineDeps{
		Registry: registry,
		Cache:    deps.Cache,
	}, engineCfg, log)

	deps.Mutator = bulk.NewMutator(registry, deps.Archives, exporter, bulk.Config{
		BatchSize:  cfg.BatchSize,
		BatchDelay: cfg.BatchDelay,
	}, log)

	deps.Search = search.NewSearchEngine(registry, deps.Searches, deps.Tracker, log)
	deps.Jobs = jobs.NewService(jobStore, queue, log)
	deps.Cleanup = cleanup.NewService(registry, deps.Policies, jobStore, deps.Mutator, log)
	deps.Ingester = ingest.NewIngester(registry, ingest.Config{
		FetchWorkers: cfg.IngestFetchWorkers,
	}, log)

	// Gmail provider and the session-to-client factory. Without credentials
	// sessions still work; only GetRemoteClient fails.
	var factory auth.ClientFactory
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		deps.Gmail = provider.NewGmailProvider(&provider.GmailConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			QPS:          cfg.GmailQPS,
		}, log)
		gmail := deps.Gmail
		factory = func(token *oauth2.Token) out.RemoteMailClient {
			return gmail.ClientFor(token)
		}
	}

	deps.Sessions = auth.NewSessionService(auth.SessionConfig{
		JWTSecret:      cfg.JWTSecret,
		SessionTimeout: cfg.SessionTimeout,
	}, factory, deps.ACL, log)

	deps.Tools = tools.NewToolset(tools.Deps{
		Auth:    deps.Sessions,
		Search:  deps.Search,
		Jobs:    deps.Jobs,
		Bulk:    deps.Mutator,
		Cleanup: deps.Cleanup,
		Tracker: deps.Tracker,
	})

	deps.Stats = metrics.NewWorkerStats()

	return deps, runCleanups, nil
}

// HealthCheck probes the shared store and, when configured, Redis.
func (d *Dependencies) HealthCheck(ctx context.Context) error {
	var one int
	if err := d.Shared.Get(ctx, &one, "SELECT 1"); err != nil {
		return err
	}
	if d.Redis != nil {
		if err := d.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}
