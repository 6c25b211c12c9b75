// Package warehouse loads persisted batch artifacts into PostgreSQL.
//
// Rows are inserted with ON CONFLICT (id) DO NOTHING, so loading the same
// output directory twice is harmless. Identifiers that are not 64-bit
// integers cannot be keyed in the table and are skipped.
package warehouse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/Sternrassler/catalog-crawler/pkg/artifact"
	"github.com/Sternrassler/catalog-crawler/pkg/logging"
	"github.com/Sternrassler/catalog-crawler/pkg/product"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var rowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "crawler_warehouse_rows_total",
	Help: "Warehouse rows by result",
}, []string{"result"}) // "inserted", "duplicate", "skipped"

// DefaultTable is the target table name.
const DefaultTable = "products"

// DefaultChunkSize is the number of rows sent per pgx batch.
const DefaultChunkSize = 500

// Config holds loader configuration.
type Config struct {
	DSN       string
	Table     string
	ChunkSize int
	MaxConns  int32
}

// Stats summarizes a load.
type Stats struct {
	Files       int
	BadFiles    int
	Records     int
	Inserted    int
	Duplicates  int
	SkippedRows int
}

// Row is one products table row.
type Row struct {
	ID          int64
	Name        string
	URLKey      string
	Price       float64
	Description string
	Images      []byte // JSON array
}

// Loader writes records into PostgreSQL.
type Loader struct {
	pool      *pgxpool.Pool
	table     string
	chunkSize int
	logger    zerolog.Logger
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Loader, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return newLoader(pool, cfg), nil
}

func newLoader(pool *pgxpool.Pool, cfg Config) *Loader {
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	return &Loader{
		pool:      pool,
		table:     pgx.Identifier{table}.Sanitize(),
		chunkSize: chunk,
		logger:    logging.NewLogger("warehouse"),
	}
}

// Close closes the connection pool.
func (l *Loader) Close() {
	l.pool.Close()
}

// EnsureSchema creates the products table if it does not exist.
func (l *Loader) EnsureSchema(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+l.table+` (
		id BIGINT PRIMARY KEY,
		name TEXT,
		url_key TEXT,
		price NUMERIC,
		description TEXT,
		images JSONB
	)`)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// LoadDir inserts every artifact found in dir. Unreadable artifacts are skipped.
func (l *Loader) LoadDir(ctx context.Context, dir string) (Stats, error) {
	var stats Stats

	files, err := artifact.List(dir)
	if err != nil {
		return stats, fmt.Errorf("list artifacts: %w", err)
	}

	for _, path := range files {
		records, err := artifact.ReadFile(path)
		if err != nil {
			stats.BadFiles++
			l.logger.Warn().Err(err).Str("file", filepath.Base(path)).Msg("Skipping unreadable artifact")
			continue
		}
		stats.Files++

		s, err := l.Insert(ctx, records)
		stats.Records += s.Records
		stats.Inserted += s.Inserted
		stats.Duplicates += s.Duplicates
		stats.SkippedRows += s.SkippedRows
		if err != nil {
			return stats, fmt.Errorf("load %s: %w", filepath.Base(path), err)
		}
	}

	l.logger.Info().
		Int("files", stats.Files).
		Int("bad_files", stats.BadFiles).
		Int("records", stats.Records).
		Int("inserted", stats.Inserted).
		Int("duplicates", stats.Duplicates).
		Int("skipped", stats.SkippedRows).
		Msg("Warehouse load complete")

	return stats, nil
}

// Insert writes records in chunks of one pgx batch each.
func (l *Loader) Insert(ctx context.Context, records []product.Record) (Stats, error) {
	stats := Stats{Records: len(records)}

	rows, skipped := Rows(records)
	stats.SkippedRows = skipped
	rowsTotal.WithLabelValues("skipped").Add(float64(skipped))
	if skipped > 0 {
		l.logger.Warn().Int("rows", skipped).Msg("Skipping records without numeric id")
	}

	query := `INSERT INTO ` + l.table + ` (id, name, url_key, price, description, images)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`

	for i := 0; i < len(rows); i += l.chunkSize {
		j := min(i+l.chunkSize, len(rows))

		b := &pgx.Batch{}
		for _, r := range rows[i:j] {
			b.Queue(query, r.ID, r.Name, r.URLKey, r.Price, r.Description, string(r.Images))
		}

		br := l.pool.SendBatch(ctx, b)
		for k := i; k < j; k++ {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return stats, fmt.Errorf("insert id %d: %w", rows[k].ID, err)
			}
			if tag.RowsAffected() == 1 {
				stats.Inserted++
			} else {
				stats.Duplicates++
			}
		}
		if err := br.Close(); err != nil {
			return stats, fmt.Errorf("close batch: %w", err)
		}
	}

	rowsTotal.WithLabelValues("inserted").Add(float64(stats.Inserted))
	rowsTotal.WithLabelValues("duplicate").Add(float64(stats.Duplicates))
	return stats, nil
}

// Rows converts records into table rows, dropping records whose id is not numeric.
func Rows(records []product.Record) ([]Row, int) {
	rows := make([]Row, 0, len(records))
	skipped := 0
	for _, rec := range records {
		id, ok := rec.ID.Int64()
		if !ok {
			skipped++
			continue
		}

		images := rec.Images
		if images == nil {
			images = []string{}
		}
		data, err := json.Marshal(images)
		if err != nil {
			skipped++
			continue
		}

		rows = append(rows, Row{
			ID:          id,
			Name:        rec.Name,
			URLKey:      rec.URLKey,
			Price:       rec.Price,
			Description: rec.Description,
			Images:      data,
		})
	}
	return rows, skipped
}
