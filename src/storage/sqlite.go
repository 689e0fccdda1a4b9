package storage

import (
	"context"
	"database/sql"
	"fmt"

	"chart-hub/src/helpers"
	"chart-hub/src/logger"
	"chart-hub/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type AsyncSQLiteDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Table  string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewAsyncSQLiteDB(cfg *models.MConfig, log *logger.Logger) (*AsyncSQLiteDB, error) {
	if cfg.Source.DBPath == "" {
		return nil, helpers.NewConfigurationError("sqlite source needs db_path", nil)
	}
	table := cfg.Source.Table
	if table == "" {
		table = defaultChartsTable
	}
	return &AsyncSQLiteDB{
		Config: cfg,
		Table:  table,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Name() string {
	return "sqlite:" + d.Table
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Initialize() error {
	dsn := d.Config.Source.DBPath

	// Open DB
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) createTables() error {
	// The table is the source of truth, never dropped here.
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			chart_name TEXT NOT NULL,
			chart_type TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			metadata TEXT,
			data_points TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%%Y-%%m-%%dT%%H:%%M:%%SZ', 'now'))
		);
	`, d.Table)
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create %s: %w", d.Table, err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) FetchCharts(ctx context.Context) ([]models.MRawChart, error) {
	if d.DB == nil {
		return nil, helpers.NewFetchError("sqlite source not initialized", nil)
	}

	query := fmt.Sprintf(`
		SELECT id, chart_name, chart_type, category, metadata, data_points, created_at
		FROM %s
		ORDER BY created_at DESC, id
	`, d.Table)

	rows, err := d.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, helpers.NewFetchError("query charts", err)
	}
	return scanCharts(rows)
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) SaveCharts(charts []models.MRawChart) error {
	if len(charts) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(fmt.Sprintf(`
		INSERT INTO %s (id, chart_name, chart_type, category, metadata, data_points, created_at)
		VALUES (?, ?, ?, ?, ?, ?, COALESCE(NULLIF(?, ''), strftime('%%Y-%%m-%%dT%%H:%%M:%%SZ', 'now')))
		ON CONFLICT (id) DO UPDATE SET
			chart_name = excluded.chart_name,
			chart_type = excluded.chart_type,
			category = excluded.category,
			metadata = excluded.metadata,
			data_points = excluded.data_points
	`, d.Table))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range charts {
		metadata, points, err := encodeChart(c)
		if err != nil {
			return fmt.Errorf("encode chart %s: %w", c.ID, err)
		}
		if _, err := stmt.Exec(c.ID, c.ChartName, string(c.ChartType), c.Category, metadata, points, c.CreatedAt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
