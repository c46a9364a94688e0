package tenant

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/opticore-app/opticore/internal/config"
	"github.com/opticore-app/opticore/internal/db"
)

// maintenanceDatabase is the database used for CREATE/DROP DATABASE
// statements, which cannot run against the database they target.
const maintenanceDatabase = "postgres"

// databaseNamePattern restricts tenant database names to safe identifiers.
// Names are interpolated into DDL, so this is a hard requirement, not
// cosmetics.
var databaseNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// ValidDatabaseName reports whether a name is acceptable as a tenant
// database identifier.
func ValidDatabaseName(name string) bool {
	return databaseNamePattern.MatchString(strings.TrimSpace(name))
}

// Provisioner creates and drops physical tenant databases.
type Provisioner interface {
	CreateDatabase(ctx context.Context, name string) error
	DropDatabase(ctx context.Context, name string) error
}

// PostgresProvisioner provisions tenant databases on the configured
// postgres host through a short-lived maintenance connection.
type PostgresProvisioner struct {
	cfg config.TenantDBConfig
}

// NewPostgresProvisioner constructs a PostgresProvisioner.
func NewPostgresProvisioner(cfg config.TenantDBConfig) *PostgresProvisioner {
	return &PostgresProvisioner{cfg: cfg}
}

// CreateDatabase creates the physical database for a new tenant.
func (p *PostgresProvisioner) CreateDatabase(ctx context.Context, name string) error {
	if !ValidDatabaseName(name) {
		return fmt.Errorf("tenant: invalid database name %q", name)
	}
	conn, errOpen := db.OpenWithTimeout(p.maintenanceDSN(), p.cfg.ConnectTimeout)
	if errOpen != nil {
		return fmt.Errorf("%w: %v", ErrTenantUnavailable, errOpen)
	}
	defer func() { _ = db.Close(conn) }()

	if errExec := conn.WithContext(ctx).Exec(fmt.Sprintf("CREATE DATABASE %q", name)).Error; errExec != nil {
		return fmt.Errorf("tenant: create database %s: %w", name, errExec)
	}
	return nil
}

// DropDatabase removes the physical database of a deleted tenant.
func (p *PostgresProvisioner) DropDatabase(ctx context.Context, name string) error {
	if !ValidDatabaseName(name) {
		return fmt.Errorf("tenant: invalid database name %q", name)
	}
	conn, errOpen := db.OpenWithTimeout(p.maintenanceDSN(), p.cfg.ConnectTimeout)
	if errOpen != nil {
		return fmt.Errorf("%w: %v", ErrTenantUnavailable, errOpen)
	}
	defer func() { _ = db.Close(conn) }()

	if errExec := conn.WithContext(ctx).Exec(fmt.Sprintf("DROP DATABASE IF EXISTS %q", name)).Error; errExec != nil {
		return fmt.Errorf("tenant: drop database %s: %w", name, errExec)
	}
	return nil
}

// maintenanceDSN renders the DSN for the maintenance database.
func (p *PostgresProvisioner) maintenanceDSN() string {
	parts := []string{
		fmt.Sprintf("host=%s", p.cfg.Host),
		fmt.Sprintf("port=%d", p.cfg.Port),
		fmt.Sprintf("dbname=%s", maintenanceDatabase),
	}
	if p.cfg.User != "" {
		parts = append(parts, fmt.Sprintf("user=%s", p.cfg.User))
	}
	if p.cfg.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", p.cfg.Password))
	}
	if p.cfg.SSLMode != "" {
		parts = append(parts, fmt.Sprintf("sslmode=%s", p.cfg.SSLMode))
	}
	if p.cfg.ConnectTimeout > 0 {
		seconds := int(p.cfg.ConnectTimeout / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", seconds))
	}
	return strings.Join(parts, " ")
}
