package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Masterminds/semver/v3"
	"github.com/redis/go-redis/v9"

	"github.com/goatkit/prodmanager/internal/config"
	"github.com/goatkit/prodmanager/internal/database"
	"github.com/goatkit/prodmanager/internal/plugin"
	"github.com/goatkit/prodmanager/internal/plugin/loader"
	"github.com/goatkit/prodmanager/internal/plugin/signing"
	"github.com/goatkit/prodmanager/internal/repository"
	pkgplugin "github.com/goatkit/prodmanager/pkg/plugin"
)

// app holds the process-scoped objects shared by the commands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	db    *sql.DB
	redis *redis.Client

	logs       *plugin.LogBuffer
	host       *plugin.ProdHostAPI
	loader     *loader.Loader
	registry   *plugin.Registry
	manager    *plugin.Manager
	dispatcher *plugin.Dispatcher
	installed  *repository.PluginRepository
	links      *repository.ProductPluginRepository
}

func newApp(ctx context.Context, c *config.Config, src plugin.ConfigSource, logger *slog.Logger) (*app, error) {
	db, err := database.Open(ctx, c.Database.Driver, c.Database.DSN, database.PoolConfig{
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: c, logger: logger, db: db}

	hostOpts := []plugin.ProdHostAPIOption{
		plugin.WithDB(db),
		plugin.WithConfig(src),
		plugin.WithLogger(logger),
	}
	locker := plugin.Locker(plugin.NewMemoryLocker())

	if c.RedisEnabled() {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis %s: %w", c.Redis.Addr, err)
		}
		hostOpts = append(hostOpts, plugin.WithCache(a.redis))
		locker = plugin.NewRedisLocker(a.redis, "prodmanager:lock:plugin:",
			plugin.WithLockTTL(c.Redis.LockTTL),
			plugin.WithLockLogger(logger),
		)
	}

	a.logs = plugin.NewLogBuffer(c.Plugins.LogBufferSize)
	hostOpts = append(hostOpts, plugin.WithLogBuffer(a.logs))
	a.host = plugin.NewProdHostAPI(hostOpts...)

	resolverOpts := []loader.ResolverOption{loader.WithHost(a.host.For)}
	if v, err := semver.NewVersion(c.App.Version); err == nil {
		resolverOpts = append(resolverOpts, loader.WithHostVersion(v))
	} else {
		logger.Warn("app.version is not semver, requires constraints are not checked", "version", c.App.Version)
	}

	resolvers := []loader.Resolver{loader.NewFactoryResolver(pkgplugin.Lookup, resolverOpts...)}
	if c.Plugins.SharedObjects {
		keys, err := signing.ParsePublicKeys(c.Plugins.TrustedKeys)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("plugins.trusted_keys: %w", err)
		}
		soOpts := append([]loader.ResolverOption{loader.WithTrustedKeys(keys...)}, resolverOpts...)
		resolvers = append(resolvers, loader.NewSharedObjectResolver(soOpts...))
	}
	a.loader = loader.NewLoader(resolvers, loader.WithLogger(logger))

	a.registry = plugin.NewRegistry(c.Plugins.Dir, a.loader, logger)
	a.installed = repository.NewPluginRepository(db)
	a.links = repository.NewProductPluginRepository(db)
	a.manager = plugin.NewManager(plugin.ManagerConfig{
		Registry: a.registry,
		Resolver: a.loader,
		DB:       db,
		Links:    a.links,
		Locker:   locker,
		Logger:   logger,
		Logs:     a.logs,
	})
	a.dispatcher = plugin.NewDispatcher(a.registry, a.links, logger, a.logs)

	if err := os.MkdirAll(c.Plugins.Dir, 0o755); err != nil {
		a.Close()
		return nil, fmt.Errorf("create plugins dir: %w", err)
	}
	return a, nil
}

// Close releases the database and Redis connections.
func (a *app) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
