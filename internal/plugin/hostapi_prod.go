package plugin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/goatkit/prodmanager/internal/database"
)

// ConfigSource is the read side of the application configuration.
// *viper.Viper satisfies it.
type ConfigSource interface {
	GetString(key string) string
	IsSet(key string) bool
}

// cacheClient is the part of redis.Cmdable the host API needs.
type cacheClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// publicConfigPrefixes are the application keys extensions may read.
var publicConfigPrefixes = []string{"app."}

// ProdHostAPI is the production implementation of HostAPI. Statements run
// inside the transaction carried by ctx when there is one, so an install
// hook's writes commit or roll back with the install.
type ProdHostAPI struct {
	db     *sql.DB
	cache  cacheClient
	config ConfigSource
	logger *slog.Logger
	logs   *LogBuffer
	plugin string
}

// ProdHostAPIOption is a functional option for ProdHostAPI.
type ProdHostAPIOption func(*ProdHostAPI)

// WithDB sets the database.
func WithDB(db *sql.DB) ProdHostAPIOption {
	return func(h *ProdHostAPI) {
		h.db = db
	}
}

// WithCache sets the Redis client used for the extension cache.
func WithCache(c redis.Cmdable) ProdHostAPIOption {
	return func(h *ProdHostAPI) {
		if c != nil {
			h.cache = c
		}
	}
}

// WithConfig sets the configuration source.
func WithConfig(c ConfigSource) ProdHostAPIOption {
	return func(h *ProdHostAPI) {
		h.config = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ProdHostAPIOption {
	return func(h *ProdHostAPI) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithLogBuffer sets the buffer extension log calls are copied to.
func WithLogBuffer(b *LogBuffer) ProdHostAPIOption {
	return func(h *ProdHostAPI) {
		h.logs = b
	}
}

// NewProdHostAPI creates a production host API with the given options.
func NewProdHostAPI(opts ...ProdHostAPIOption) *ProdHostAPI {
	h := &ProdHostAPI{logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// For returns a host API scoped to one extension: its cache keys, settings
// and log lines are attributed to systemName.
func (h *ProdHostAPI) For(systemName string) HostAPI {
	scoped := *h
	scoped.plugin = systemName
	scoped.logger = h.logger.With("plugin", systemName)
	return &scoped
}

func (h *ProdHostAPI) conn(ctx context.Context) (database.Querier, error) {
	if tx, ok := database.TxFrom(ctx); ok {
		return tx, nil
	}
	if h.db == nil {
		return nil, errors.New("no database configured")
	}
	return h.db, nil
}

// DBQuery executes a SELECT query and returns rows as maps.
func (h *ProdHostAPI) DBQuery(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	q, err := h.conn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, database.ConvertPlaceholders(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("get columns: %w", err)
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			// Drivers hand back text columns as []byte
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return results, nil
}

// DBExec executes an INSERT/UPDATE/DELETE or DDL statement and returns affected rows.
func (h *ProdHostAPI) DBExec(ctx context.Context, query string, args ...any) (int64, error) {
	q, err := h.conn(ctx)
	if err != nil {
		return 0, err
	}

	result, err := q.ExecContext(ctx, database.ConvertPlaceholders(query), args...)
	if err != nil {
		return 0, fmt.Errorf("exec failed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		// DDL on some drivers
		return 0, nil
	}
	return affected, nil
}

func (h *ProdHostAPI) cacheKey(key string) string {
	return "prodmanager:plugin:" + RegistryKey(h.plugin) + ":" + key
}

// CacheGet retrieves a value from cache. A missing cache is always a miss.
func (h *ProdHostAPI) CacheGet(ctx context.Context, key string) ([]byte, bool, error) {
	if h.cache == nil {
		return nil, false, nil
	}

	val, err := h.cache.Get(ctx, h.cacheKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	return val, true, nil
}

// CacheSet stores a value in cache. A ttl of zero keeps it until deleted.
func (h *ProdHostAPI) CacheSet(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	if h.cache == nil {
		return nil
	}
	ttl := time.Duration(ttlSeconds) * time.Second
	return h.cache.Set(ctx, h.cacheKey(key), value, ttl).Err()
}

// CacheDelete removes a value from cache.
func (h *ProdHostAPI) CacheDelete(ctx context.Context, key string) error {
	if h.cache == nil {
		return nil
	}
	return h.cache.Del(ctx, h.cacheKey(key)).Err()
}

// Log writes a structured log entry and copies it to the log buffer.
func (h *ProdHostAPI) Log(ctx context.Context, level, message string, fields map[string]any) {
	attrs := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}

	switch level {
	case "debug":
		h.logger.DebugContext(ctx, message, attrs...)
	case "warn":
		h.logger.WarnContext(ctx, message, attrs...)
	case "error":
		h.logger.ErrorContext(ctx, message, attrs...)
	default:
		level = "info"
		h.logger.InfoContext(ctx, message, attrs...)
	}

	h.logs.Log(h.plugin, level, message, fields)
}

// ConfigGet returns plugins.settings.<systemName>.<key> when set, otherwise
// one of the public application keys.
func (h *ProdHostAPI) ConfigGet(ctx context.Context, key string) (string, error) {
	if h.config == nil {
		return "", errors.New("config not loaded")
	}

	if h.plugin != "" {
		scoped := "plugins.settings." + RegistryKey(h.plugin) + "." + key
		if h.config.IsSet(scoped) {
			return h.config.GetString(scoped), nil
		}
	}

	for _, prefix := range publicConfigPrefixes {
		if strings.HasPrefix(key, prefix) && h.config.IsSet(key) {
			return h.config.GetString(key), nil
		}
	}
	return "", fmt.Errorf("unknown config key: %s", key)
}
