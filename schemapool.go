package schemapool

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/yuku/schemapool/internal/bootstrap"
	"github.com/yuku/schemapool/internal/connpool"
	"github.com/yuku/schemapool/internal/metrics"
	"github.com/yuku/schemapool/internal/pgconst"
	"github.com/yuku/schemapool/internal/readiness"
	"github.com/yuku/schemapool/internal/repository"
	"github.com/yuku/schemapool/internal/server"
	"go.uber.org/zap"
)

var _ connpool.Observer = (*readiness.Gate)(nil)

type (
	// SchemaSpec names a schema and the scripts that provision it.
	SchemaSpec = bootstrap.SchemaSpec

	// Result is the bootstrap outcome of one schema.
	Result = bootstrap.Result
)

// Service is a started, ready instance: the pool, the gate observing it and
// the repository reading through it.
type Service struct {
	Pool       *connpool.Pool
	Gate       *readiness.Gate
	Repository *repository.Repository

	// Results are the bootstrap outcomes, one per configured schema.
	Results []Result

	logger *zap.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// Open runs the startup protocol. It opens the pool, bootstraps every
// configured schema in order, validates a connection and waits for the gate
// to report Ready. Any failure is fatal: resources opened so far are closed
// and the error is returned.
func Open(ctx context.Context, cfg *Config, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	loader := cfg.ScriptLoader()
	specs, err := ResolveSchemas(cfg, loader)
	if err != nil {
		return nil, err
	}

	gate := readiness.New(bootstrap.Names(specs), logger.Named("readiness"))

	pool, err := connpool.New(ctx, cfg.ConnPoolConfig(gate, logger.Named("pool")))
	if err != nil {
		return nil, fmt.Errorf("failed to open connection pool: %w", err)
	}

	results, err := runBootstrap(ctx, cfg, pool, gate, loader, specs, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	if err := pool.Validate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to validate connection: %w", err)
	}

	if err := gate.AwaitReady(ctx, cfg.Readiness.Timeout); err != nil {
		pool.Close()
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	s := &Service{
		Pool:       pool,
		Gate:       gate,
		Repository: repository.New(pool, gate, repository.WithLogger(logger.Named("repository"))),
		Results:    results,
		logger:     logger,
		cancel:     cancel,
	}
	if cfg.Readiness.ProbeInterval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			gate.Watch(watchCtx, pool, cfg.Readiness.ProbeInterval)
		}()
	}

	logger.Info("service ready", zap.Strings("schemas", bootstrap.Names(specs)))
	return s, nil
}

func runBootstrap(
	ctx context.Context,
	cfg *Config,
	pool *connpool.Pool,
	gate *readiness.Gate,
	loader *bootstrap.ScriptLoader,
	specs []SchemaSpec,
	logger *zap.Logger,
) ([]bootstrap.Result, error) {
	opts := []bootstrap.Option{
		bootstrap.WithTracker(gate),
		bootstrap.WithLogger(logger.Named("bootstrap")),
	}

	if adminCfg, ok := cfg.AdminPoolConfig(logger); ok {
		admin, err := connpool.New(ctx, adminCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open privileged connection: %w", err)
		}
		defer admin.Close()
		opts = append(opts, bootstrap.WithPrivileged(admin))
	}

	bs := bootstrap.New(pool, loader, opts...)

	var (
		results []bootstrap.Result
		err     error
	)
	switch cfg.Bootstrap.Mode {
	case ModeVerify:
		results, err = bs.Verify(ctx, specs)
	default:
		results, err = bs.Provision(ctx, specs)
	}
	if err != nil {
		return results, fmt.Errorf("bootstrap failed: %w", err)
	}
	return results, nil
}

// ResolveSchemas returns the configured schemas with script lists filled in.
// In provision mode a schema without scripts gets every .sql file under the
// directory named after it, lower-cased.
func ResolveSchemas(cfg *Config, loader *bootstrap.ScriptLoader) ([]SchemaSpec, error) {
	specs := make([]SchemaSpec, len(cfg.Bootstrap.Schemas))
	copy(specs, cfg.Bootstrap.Schemas)

	if cfg.Bootstrap.Mode != ModeProvision {
		return specs, nil
	}
	for i, s := range specs {
		if len(s.Scripts) > 0 {
			continue
		}
		scripts, err := loader.Discover(pgconst.FoldIdentifier(s.Name))
		if err != nil {
			return nil, err
		}
		if len(scripts) == 0 {
			return nil, fmt.Errorf("%w: no scripts found for schema %s", ErrInvalidSpec, s.Name)
		}
		specs[i].Scripts = scripts
	}
	return specs, nil
}

// Handler returns the HTTP handler serving the listings, probes and metrics.
func (s *Service) Handler() http.Handler {
	reg := metrics.NewRegistry(metrics.NewCollector(s.Pool, s.Gate))
	return server.NewRouter(s.Repository, s.Gate, metrics.Handler(reg), s.logger.Named("http"))
}

// Close stops the readiness watcher and closes the pool.
func (s *Service) Close() {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
		s.Pool.Close()
	})
}
