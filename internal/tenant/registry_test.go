package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/opticore-app/opticore/internal/config"
)

func testTenantConfig() config.TenantDBConfig {
	return config.TenantDBConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "opticore",
		DefaultDatabase: "opticore",
		ConnectTimeout:  5 * time.Second,
	}
}

// countingOpener opens in-memory pools and counts constructions.
type countingOpener struct {
	total atomic.Int32
	fail  atomic.Bool
}

func newCountingOpener() *countingOpener {
	return &countingOpener{}
}

func (o *countingOpener) open(_ string, _ time.Duration) (*gorm.DB, error) {
	if o.fail.Load() {
		return nil, errors.New("connection refused")
	}
	o.total.Add(1)
	memDSN := fmt.Sprintf("file:registry_%d?mode=memory&cache=shared", time.Now().UnixNano())
	return gorm.Open(sqlite.Open(memDSN), &gorm.Config{})
}

func TestRegistryGetCachesPool(t *testing.T) {
	opener := newCountingOpener()
	registry := NewRegistryWithOpener(testTenantConfig(), opener.open)
	defer registry.ShutdownAll()

	first, errFirst := registry.Get(context.Background(), "acme")
	if errFirst != nil {
		t.Fatalf("first get: %v", errFirst)
	}
	second, errSecond := registry.Get(context.Background(), "acme")
	if errSecond != nil {
		t.Fatalf("second get: %v", errSecond)
	}
	if first != second {
		t.Fatal("expected the cached pool on repeat access")
	}
	if got := opener.total.Load(); got != 1 {
		t.Fatalf("expected 1 construction, got %d", got)
	}
	if !registry.Cached("acme") {
		t.Fatal("expected acme pool to be cached")
	}
	if registry.Cached("globex") {
		t.Fatal("globex was never opened")
	}
}

func TestRegistryConcurrentGetBuildsOnce(t *testing.T) {
	opener := newCountingOpener()
	registry := NewRegistryWithOpener(testTenantConfig(), opener.open)
	defer registry.ShutdownAll()

	const workers = 32
	pools := make([]*gorm.DB, workers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-start
			pool, errGet := registry.Get(context.Background(), "acme")
			if errGet != nil {
				t.Errorf("get: %v", errGet)
				return
			}
			pools[idx] = pool
		}(i)
	}
	close(start)
	wg.Wait()

	if got := opener.total.Load(); got != 1 {
		t.Fatalf("expected exactly one construction, got %d", got)
	}
	for idx, pool := range pools {
		if pool != pools[0] {
			t.Fatalf("worker %d received a different pool", idx)
		}
	}
}

func TestRegistryDoesNotCacheFailures(t *testing.T) {
	opener := newCountingOpener()
	opener.fail.Store(true)
	registry := NewRegistryWithOpener(testTenantConfig(), opener.open)
	defer registry.ShutdownAll()

	if _, errGet := registry.Get(context.Background(), "acme"); !errors.Is(errGet, ErrTenantUnavailable) {
		t.Fatalf("expected ErrTenantUnavailable, got %v", errGet)
	}
	if registry.Cached("acme") {
		t.Fatal("failed construction must not be cached")
	}

	opener.fail.Store(false)
	if _, errGet := registry.Get(context.Background(), "acme"); errGet != nil {
		t.Fatalf("retry after recovery: %v", errGet)
	}
}

func TestRegistryEvict(t *testing.T) {
	opener := newCountingOpener()
	registry := NewRegistryWithOpener(testTenantConfig(), opener.open)
	defer registry.ShutdownAll()

	if _, errGet := registry.Get(context.Background(), "acme"); errGet != nil {
		t.Fatalf("get: %v", errGet)
	}
	registry.Evict("acme")
	if registry.Cached("acme") {
		t.Fatal("expected acme to be evicted")
	}
	registry.Evict("acme")

	if _, errGet := registry.Get(context.Background(), "acme"); errGet != nil {
		t.Fatalf("get after evict: %v", errGet)
	}
	if got := opener.total.Load(); got != 2 {
		t.Fatalf("expected reconstruction after evict, got %d constructions", got)
	}
}

func TestRegistryShutdownAll(t *testing.T) {
	opener := newCountingOpener()
	registry := NewRegistryWithOpener(testTenantConfig(), opener.open)

	if _, errGet := registry.Get(context.Background(), "acme"); errGet != nil {
		t.Fatalf("get: %v", errGet)
	}
	registry.ShutdownAll()
	registry.ShutdownAll()

	if _, errGet := registry.Get(context.Background(), "acme"); !errors.Is(errGet, ErrRegistryClosed) {
		t.Fatalf("expected ErrRegistryClosed, got %v", errGet)
	}
}

func TestRegistryGetDefault(t *testing.T) {
	opener := newCountingOpener()
	registry := NewRegistryWithOpener(testTenantConfig(), opener.open)
	defer registry.ShutdownAll()

	if registry.DefaultDatabase() != "opticore" {
		t.Fatalf("unexpected default database %q", registry.DefaultDatabase())
	}
	if _, errGet := registry.GetDefault(context.Background()); errGet != nil {
		t.Fatalf("get default: %v", errGet)
	}
	if !registry.Cached("opticore") {
		t.Fatal("expected default pool to be cached")
	}
}

func TestRegistryRejectsEmptyName(t *testing.T) {
	registry := NewRegistryWithOpener(testTenantConfig(), newCountingOpener().open)
	defer registry.ShutdownAll()

	if _, errGet := registry.Get(context.Background(), "  "); errGet == nil {
		t.Fatal("expected error for empty database name")
	}
}

func TestDSNForIncludesTemplate(t *testing.T) {
	cfg := testTenantConfig()
	cfg.Password = "pw"
	cfg.SSLMode = "disable"
	registry := NewRegistryWithOpener(cfg, newCountingOpener().open)

	dsn := registry.dsnFor("acme")
	fields := make(map[string]bool)
	for _, part := range strings.Fields(dsn) {
		fields[part] = true
	}
	for _, want := range []string{"host=localhost", "port=5432", "dbname=acme", "user=opticore", "password=pw", "sslmode=disable", "connect_timeout=5"} {
		if !fields[want] {
			t.Fatalf("dsn %q missing %q", dsn, want)
		}
	}
}
