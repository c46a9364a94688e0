package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/opticore-app/opticore/internal/config"
	"github.com/opticore-app/opticore/internal/db"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// Registry errors.
var (
	// ErrTenantUnavailable indicates the tenant database could not be reached.
	ErrTenantUnavailable = errors.New("tenant unavailable")
	// ErrRegistryClosed indicates the registry was already shut down.
	ErrRegistryClosed = errors.New("tenant registry closed")
)

// OpenFunc constructs a connection for one tenant DSN. It exists so tests can
// substitute SQLite-backed pools for the postgres template.
type OpenFunc func(dsn string, timeout time.Duration) (*gorm.DB, error)

// Registry maps tenant database names to lazily-created, cached connection
// pools. At most one pool per name is ever live; concurrent first requests
// for the same name collapse into a single construction.
type Registry struct {
	cfg  config.TenantDBConfig
	open OpenFunc

	group singleflight.Group

	mu     sync.RWMutex
	pools  map[string]*gorm.DB
	closed bool
}

// NewRegistry builds a registry over the configured connection template.
func NewRegistry(cfg config.TenantDBConfig) *Registry {
	return NewRegistryWithOpener(cfg, db.OpenWithTimeout)
}

// NewRegistryWithOpener builds a registry with a custom pool constructor.
func NewRegistryWithOpener(cfg config.TenantDBConfig, open OpenFunc) *Registry {
	return &Registry{
		cfg:   cfg,
		open:  open,
		pools: make(map[string]*gorm.DB),
	}
}

// Get returns the cached pool for the named database, constructing it on
// first access. Construction failures are not cached, so a later call can
// retry.
func (r *Registry) Get(ctx context.Context, name string) (*gorm.DB, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("tenant: empty database name")
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, ErrRegistryClosed
	}
	if pool, ok := r.pools[name]; ok {
		r.mu.RUnlock()
		return pool, nil
	}
	r.mu.RUnlock()

	value, err, _ := r.group.Do(name, func() (any, error) {
		// Re-check under the write path: a previous flight may have
		// populated the cache between the RUnlock above and this call.
		r.mu.RLock()
		if r.closed {
			r.mu.RUnlock()
			return nil, ErrRegistryClosed
		}
		if pool, ok := r.pools[name]; ok {
			r.mu.RUnlock()
			return pool, nil
		}
		r.mu.RUnlock()

		pool, errOpen := r.open(r.dsnFor(name), r.cfg.ConnectTimeout)
		if errOpen != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrTenantUnavailable, name, errOpen)
		}

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			_ = db.Close(pool)
			return nil, ErrRegistryClosed
		}
		r.pools[name] = pool
		r.mu.Unlock()
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	pool, ok := value.(*gorm.DB)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTenantUnavailable, name)
	}
	if errCtx := ctx.Err(); errCtx != nil {
		return nil, errCtx
	}
	return pool, nil
}

// GetDefault returns the pool for the configured default database, used by
// requests that carry no authenticated identity.
func (r *Registry) GetDefault(ctx context.Context) (*gorm.DB, error) {
	return r.Get(ctx, r.cfg.DefaultDatabase)
}

// DefaultDatabase returns the configured default database name.
func (r *Registry) DefaultDatabase() string {
	return r.cfg.DefaultDatabase
}

// Cached reports whether a pool is currently live for the named database.
func (r *Registry) Cached(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.pools[name]
	return ok
}

// Evict closes and removes the cached pool for the named database. It is a
// no-op when no pool is cached.
func (r *Registry) Evict(name string) {
	r.mu.Lock()
	pool, ok := r.pools[name]
	if ok {
		delete(r.pools, name)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	if errClose := db.Close(pool); errClose != nil {
		log.WithError(errClose).Warnf("tenant: close evicted pool %s", name)
	}
}

// ShutdownAll closes every cached pool. It is idempotent and closes the
// remaining pools even when some fail.
func (r *Registry) ShutdownAll() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	pools := r.pools
	r.pools = make(map[string]*gorm.DB)
	r.mu.Unlock()

	for name, pool := range pools {
		if errClose := db.Close(pool); errClose != nil {
			log.WithError(errClose).Warnf("tenant: close pool %s", name)
		}
	}
}

// dsnFor renders the postgres DSN for one tenant database from the template.
func (r *Registry) dsnFor(name string) string {
	parts := []string{
		fmt.Sprintf("host=%s", r.cfg.Host),
		fmt.Sprintf("port=%d", r.cfg.Port),
		fmt.Sprintf("dbname=%s", name),
	}
	if r.cfg.User != "" {
		parts = append(parts, fmt.Sprintf("user=%s", r.cfg.User))
	}
	if r.cfg.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", r.cfg.Password))
	}
	if r.cfg.SSLMode != "" {
		parts = append(parts, fmt.Sprintf("sslmode=%s", r.cfg.SSLMode))
	}
	if r.cfg.ConnectTimeout > 0 {
		seconds := int(r.cfg.ConnectTimeout / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", seconds))
	}
	return strings.Join(parts, " ")
}
