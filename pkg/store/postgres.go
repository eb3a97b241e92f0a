package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ktsuji/budgetscan/internal/models"
)

type StoreConfig struct {
	ConnString       string
	MunicipalityID   int
	MunicipalityName string
	QueryTimeout     time.Duration
}

// Store persists budget records into Postgres: one projects row per
// record, policy_areas as a lazily created dimension, kpi_history as
// an append-only measurement log. The store is the sole writer of
// its tables within a run.
type Store struct {
	config StoreConfig
	pool   *pgxpool.Pool
	logger *slog.Logger

	// serializes find-or-create so concurrent extraction workers
	// racing on the same new name cannot create duplicate rows
	mu    sync.Mutex
	areas map[string]int64
}

func NewWithConfig(config StoreConfig) (*Store, error) {
	if config.MunicipalityID == 0 {
		config.MunicipalityID = 1
	}
	if config.MunicipalityName == "" {
		config.MunicipalityName = "富山市"
	}
	if config.QueryTimeout == 0 {
		config.QueryTimeout = 30 * time.Second
	}

	pool, err := pgxpool.New(context.Background(), config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	s := &Store{
		config: config,
		pool:   pool,
		logger: slog.Default().With("component", "store"),
		areas:  make(map[string]int64),
	}

	if err := s.initialize(); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.QueryTimeout)
	defer cancel()

	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to reach database: %v", err)
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS policy_areas (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS projects (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			budget_amount BIGINT NOT NULL,
			fiscal_year INTEGER NOT NULL,
			municipality_id INTEGER NOT NULL,
			policy_area_id BIGINT NOT NULL REFERENCES policy_areas(id),
			kpi_json JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS kpi_history (
			id BIGSERIAL PRIMARY KEY,
			project_id BIGINT NOT NULL REFERENCES projects(id),
			metric_name TEXT NOT NULL,
			metric_value DOUBLE PRECISION,
			target_value DOUBLE PRECISION,
			measured_date TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table: %v", err)
		}
	}

	return nil
}

// FindOrCreatePolicyArea resolves a policy area name to its durable
// identifier, inserting the row on first reference. Idempotent: a
// second call with the same name returns the same identifier.
func (s *Store) FindOrCreatePolicyArea(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.areas[name]; ok {
		return id, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.QueryTimeout)
	defer cancel()

	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM policy_areas WHERE name = $1`, name).Scan(&id)
	if err == nil {
		s.areas[name] = id
		return id, nil
	}
	if err != pgx.ErrNoRows {
		return 0, &PersistenceError{Op: "lookup policy area", Err: err}
	}

	// ON CONFLICT keeps this safe against a row created between the
	// select and the insert by a previous run's leftovers.
	err = s.pool.QueryRow(ctx,
		`INSERT INTO policy_areas (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`, name).Scan(&id)
	if err != nil {
		return 0, &PersistenceError{Op: "create policy area", Err: err}
	}

	s.areas[name] = id
	return id, nil
}

// PersistRecord inserts one project bound to its resolved policy
// area plus one kpi_history row per KPI entry, all in a single
// transaction: the project never lands without its KPI rows.
func (s *Store) PersistRecord(ctx context.Context, record models.BudgetRecord) (int64, error) {
	areaID, err := s.FindOrCreatePolicyArea(ctx, record.PolicyArea)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.QueryTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, &PersistenceError{Op: "begin transaction", Err: err}
	}
	defer tx.Rollback(ctx)

	kpiJSON, err := json.Marshal(record.KPI)
	if err != nil {
		return 0, &PersistenceError{Op: "encode kpi", Err: err}
	}

	var projectID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO projects
			(name, description, budget_amount, fiscal_year, municipality_id, policy_area_id, kpi_json)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		record.ProjectName,
		record.Description,
		record.BudgetAmount,
		record.FiscalYear,
		s.config.MunicipalityID,
		areaID,
		kpiJSON,
	).Scan(&projectID)
	if err != nil {
		return 0, &PersistenceError{Op: "insert project", Err: err}
	}

	measured := time.Now()
	for metric, value := range record.KPI {
		_, err = tx.Exec(ctx,
			`INSERT INTO kpi_history
				(project_id, metric_name, metric_value, target_value, measured_date)
			 VALUES ($1, $2, $3, $4, $5)`,
			projectID, metric, value.Current, value.Target, measured)
		if err != nil {
			return 0, &PersistenceError{Op: "insert kpi sample", Err: err}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, &PersistenceError{Op: "commit", Err: err}
	}

	return projectID, nil
}

// PersistBatch persists each record independently, continuing past
// individual failures. Returns identifiers for the records that
// succeeded; failures are logged with a record summary.
func (s *Store) PersistBatch(ctx context.Context, records []models.BudgetRecord) []int64 {
	ids := make([]int64, 0, len(records))
	for _, record := range records {
		id, err := s.PersistRecord(ctx, record)
		if err != nil {
			s.logger.Warn("record not persisted", "record", record.Summary(), "err", err)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// MirrorRows returns the denormalized projection the workspace
// mirror reads: projects joined with their policy area, KPI summary
// rendered as JSON text.
func (s *Store) MirrorRows(ctx context.Context) ([]models.MirrorRow, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.QueryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT p.id, p.name, COALESCE(p.description, ''), p.budget_amount,
			a.name, p.fiscal_year, COALESCE(p.kpi_json::text, '{}')
		 FROM projects p
		 JOIN policy_areas a ON a.id = p.policy_area_id
		 WHERE p.municipality_id = $1
		 ORDER BY p.id`,
		s.config.MunicipalityID)
	if err != nil {
		return nil, &PersistenceError{Op: "query mirror rows", Err: err}
	}
	defer rows.Close()

	var result []models.MirrorRow
	for rows.Next() {
		row := models.MirrorRow{Municipality: s.config.MunicipalityName}
		err := rows.Scan(
			&row.ProjectID,
			&row.ProjectName,
			&row.Description,
			&row.BudgetAmount,
			&row.PolicyArea,
			&row.FiscalYear,
			&row.KPISummary,
		)
		if err != nil {
			return nil, &PersistenceError{Op: "scan mirror row", Err: err}
		}
		result = append(result, row)
	}

	return result, rows.Err()
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
