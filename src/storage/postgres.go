package storage

import (
	"context"
	"database/sql"
	"fmt"

	"chart-hub/src/helpers"
	"chart-hub/src/logger"
	"chart-hub/src/models"

	_ "github.com/lib/pq"
)

const defaultSchema = "public"

// -----------------------------------------------------------------------------

type PostgresDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Schema string
	Table  string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPostgresDB(cfg *models.MConfig, log *logger.Logger) (*PostgresDB, error) {
	if cfg.Source.DBConnectionString == "" {
		return nil, helpers.NewConfigurationError("postgres source needs db_connection_string", nil)
	}
	table := cfg.Source.Table
	if table == "" {
		table = defaultChartsTable
	}

	return &PostgresDB{
		Config: cfg,
		Schema: defaultSchema,
		Table:  table,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Name() string {
	return "postgres:" + d.Table
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) qualifiedTable() string {
	return fmt.Sprintf(`"%s"."%s"`, d.Schema, d.Table)
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Initialize() error {
	dsn := d.Config.Source.DBConnectionString
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	if err := d.createTables(); err != nil {
		return err
	}

	d.Logger.Info("PostgresDB initialized successfully (Table: %s)", d.qualifiedTable())
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) createTables() error {
	// created_at is ISO-8601 text so both stores sort and scan it the same way.
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			chart_name TEXT NOT NULL,
			chart_type TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			metadata TEXT,
			data_points TEXT,
			created_at TEXT NOT NULL DEFAULT to_char(now() AT TIME ZONE 'utc', 'YYYY-MM-DD"T"HH24:MI:SS"Z"')
		);
	`, d.qualifiedTable())
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create %s: %w", d.qualifiedTable(), err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) FetchCharts(ctx context.Context) ([]models.MRawChart, error) {
	if d.DB == nil {
		return nil, helpers.NewFetchError("postgres source not initialized", nil)
	}

	query := fmt.Sprintf(`
		SELECT id, chart_name, chart_type, category, metadata, data_points, created_at
		FROM %s
		ORDER BY created_at DESC, id
	`, d.qualifiedTable())

	rows, err := d.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, helpers.NewFetchError("query charts", err)
	}
	return scanCharts(rows)
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) SaveCharts(charts []models.MRawChart) error {
	if len(charts) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, chart_name, chart_type, category, metadata, data_points, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE(NULLIF($7, ''), to_char(now() AT TIME ZONE 'utc', 'YYYY-MM-DD"T"HH24:MI:SS"Z"')))
		ON CONFLICT (id) DO UPDATE SET
			chart_name = EXCLUDED.chart_name,
			chart_type = EXCLUDED.chart_type,
			category = EXCLUDED.category,
			metadata = EXCLUDED.metadata,
			data_points = EXCLUDED.data_points
	`, d.qualifiedTable())
	stmt, err := tx.Prepare(query)
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

func (d *PostgresDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
