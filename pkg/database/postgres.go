// Package database owns the PostgreSQL pool, transactions carried in the
// context and the embedded schema migrations.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultMaxConns        = 25
	defaultConnLifetime    = time.Hour
	defaultConnIdleTime    = 30 * time.Minute
	defaultApplicationName = "ekaya-reasoner"
)

// DB is the reasoner's connection pool.
type DB struct {
	*pgxpool.Pool
}

// Config holds pool settings. Zero values take the defaults above.
type Config struct {
	URL             string
	ApplicationName string
	MaxConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

func (c *Config) poolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	pc.MaxConns = orDefault(c.MaxConnections, defaultMaxConns)
	pc.MaxConnLifetime = orDefault(c.MaxConnLifetime, defaultConnLifetime)
	pc.MaxConnIdleTime = orDefault(c.MaxConnIdleTime, defaultConnIdleTime)

	// Lets operators tell reasoner sessions apart in pg_stat_activity.
	if _, set := pc.ConnConfig.RuntimeParams["application_name"]; !set {
		pc.ConnConfig.RuntimeParams["application_name"] = orDefault(c.ApplicationName, defaultApplicationName)
	}
	return pc, nil
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// NewConnection opens the pool and verifies the server is reachable.
func NewConnection(ctx context.Context, cfg *Config) (*DB, error) {
	pc, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// poolCollector exports pgxpool statistics. Values are read at scrape time.
type poolCollector struct {
	db *DB

	total      *prometheus.Desc
	acquired   *prometheus.Desc
	idle       *prometheus.Desc
	max        *prometheus.Desc
	acquires   *prometheus.Desc
	emptyWaits *prometheus.Desc
}

var _ prometheus.Collector = (*poolCollector)(nil)

// NewPoolCollector returns a collector reporting the pool's connection usage.
func NewPoolCollector(db *DB) prometheus.Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("reasoner_db_pool_"+name, help, nil, nil)
	}
	return &poolCollector{
		db:         db,
		total:      desc("connections", "Connections currently open."),
		acquired:   desc("acquired_connections", "Connections checked out by callers."),
		idle:       desc("idle_connections", "Connections idle in the pool."),
		max:        desc("max_connections", "Configured pool size."),
		acquires:   desc("acquires_total", "Successful connection acquisitions."),
		emptyWaits: desc("empty_acquires_total", "Acquisitions that waited on an exhausted pool."),
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.acquired
	ch <- c.idle
	ch <- c.max
	ch <- c.acquires
	ch <- c.emptyWaits
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.db.Stat()
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.TotalConns()))
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(s.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(s.MaxConns()))
	ch <- prometheus.MustNewConstMetric(c.acquires, prometheus.CounterValue, float64(s.AcquireCount()))
	ch <- prometheus.MustNewConstMetric(c.emptyWaits, prometheus.CounterValue, float64(s.EmptyAcquireCount()))
}
