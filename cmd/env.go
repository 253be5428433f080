package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/places-import/internal/archive"
	"github.com/sells-group/places-import/internal/enrich"
	"github.com/sells-group/places-import/internal/importer"
	"github.com/sells-group/places-import/internal/resilience"
	"github.com/sells-group/places-import/internal/store"
	"github.com/sells-group/places-import/pkg/geocode"
)

// importEnv holds the store, lookup queue and import service shared by the
// import and serve commands.
type importEnv struct {
	Store   store.Store
	Queue   *geocode.Queue
	Events  *importer.Broadcaster
	Service *importer.Service
}

// Close releases resources held by the environment.
func (e *importEnv) Close() {
	if e.Queue != nil {
		e.Queue.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates config for mode, opens and migrates the store, and
// wires the enrichment and import services. Callers should defer
// env.Close().
func initEnv(ctx context.Context, mode string) (*importEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	gaz, err := enrich.DefaultGazetteer()
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	cats, err := enrich.DefaultCategories()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	queue := initQueue()
	enricher := enrich.New(queue, gaz,
		enrich.WithDelta(cfg.Import.FallbackDelta),
		enrich.WithCategories(cats),
	)

	events := importer.NewBroadcaster(0)
	svc := importer.NewService(st, enricher,
		importer.WithObserver(events),
		importer.WithDetector(archive.NewDetector(cfg.Import.SavedDirs...)),
		importer.WithMaxArchiveBytes(cfg.Import.MaxArchiveBytes()),
		importer.WithFallbackListName(cfg.Import.FallbackListName),
	)

	return &importEnv{Store: st, Queue: queue, Events: events, Service: svc}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "places.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initQueue builds the process-wide lookup queue in front of the search
// client, guarded by a circuit breaker.
func initQueue() *geocode.Queue {
	client := geocode.NewClient(
		geocode.WithBaseURL(cfg.Geocode.BaseURL),
		geocode.WithUserAgent(cfg.Geocode.UserAgent),
		geocode.WithEmail(cfg.Geocode.Email),
	)
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.Geocode.BreakerFailures,
		ResetTimeout:     time.Duration(cfg.Geocode.BreakerResetSecs) * time.Second,
		OnStateChange:    logBreakerTransition,
	})
	return geocode.NewQueue(client,
		geocode.WithMinInterval(cfg.Geocode.MinInterval()),
		geocode.WithTimeout(cfg.Geocode.Timeout()),
		geocode.WithBreaker(breaker),
	)
}

// logBreakerTransition surfaces lookup provider outages and recoveries.
func logBreakerTransition(from, to resilience.CircuitState) {
	fields := []zap.Field{zap.String("from", from.String()), zap.String("to", to.String())}
	if to == resilience.CircuitClosed {
		zap.L().Info("geocode: breaker closed", fields...)
		return
	}
	zap.L().Warn("geocode: breaker state changed", fields...)
}
