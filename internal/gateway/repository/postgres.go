// Package repository implements the gateway's persistent and realtime job
// stores.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tinunadno/stm32-emulator/internal/gateway/models"
)

// ErrJobNotFound is returned when a job id resolves to no row.
var ErrJobNotFound = errors.New("job not found")

// PostgresRepository is the authoritative job store.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects a pgx pool and verifies the connection.
func NewPostgresRepository(ctx context.Context, dsn string, maxOpenConns, maxIdleConns int,
	connMaxLifetime time.Duration) (*PostgresRepository, error) {

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database DSN: %w", err)
	}

	cfg.MaxConns = int32(maxOpenConns)
	cfg.MinConns = int32(maxIdleConns)
	cfg.MaxConnLifetime = connMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Close closes the connection pool.
func (r *PostgresRepository) Close() {
	r.pool.Close()
}

// Pool exposes the underlying pool for health checks.
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

// CreateJob inserts a new job record.
func (r *PostgresRepository) CreateJob(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO jobs (
			job_id, user_id, sha256, state, created_at,
			timeout_seconds, debug_mode
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		job.JobID,
		job.UserID,
		job.SHA256,
		job.State,
		job.CreatedAt,
		job.TimeoutSeconds,
		job.DebugMode,
	)
	if err != nil {
		return fmt.Errorf("creating job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by id.
func (r *PostgresRepository) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	query := `
		SELECT job_id, user_id, sha256, state, worker_id,
			   created_at, started_at, finished_at, timeout_seconds,
			   error_text, debug_mode, gdb_port, gdb_host,
			   gdb_connected, gdb_connected_at
		FROM jobs
		WHERE job_id = $1
	`

	var job models.Job
	err := r.pool.QueryRow(ctx, query, jobID).Scan(
		&job.JobID,
		&job.UserID,
		&job.SHA256,
		&job.State,
		&job.WorkerID,
		&job.CreatedAt,
		&job.StartedAt,
		&job.FinishedAt,
		&job.TimeoutSeconds,
		&job.ErrorText,
		&job.DebugMode,
		&job.GDBPort,
		&job.GDBHost,
		&job.GDBConnected,
		&job.GDBConnectedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("getting job: %w", err)
	}
	return &job, nil
}

// UpdateJobState transitions a job's state, stamping finished_at for
// terminal states.
func (r *PostgresRepository) UpdateJobState(ctx context.Context, jobID string,
	state models.JobState, errorText *string) error {

	query := `
		UPDATE jobs
		SET state = $2, error_text = $3, finished_at = $4
		WHERE job_id = $1
	`

	var finishedAt *time.Time
	if state.Terminal() {
		now := time.Now()
		finishedAt = &now
	}

	if _, err := r.pool.Exec(ctx, query, jobID, state, errorText, finishedAt); err != nil {
		return fmt.Errorf("updating job state: %w", err)
	}
	return nil
}

// GetJobsByUser lists a user's jobs, newest first.
func (r *PostgresRepository) GetJobsByUser(ctx context.Context, userID string,
	limit, offset int) ([]*models.Job, error) {

	query := `
		SELECT job_id, user_id, sha256, state, worker_id,
			   created_at, started_at, finished_at, timeout_seconds,
			   error_text, debug_mode, gdb_port, gdb_host,
			   gdb_connected, gdb_connected_at
		FROM jobs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		var job models.Job
		if err := rows.Scan(
			&job.JobID,
			&job.UserID,
			&job.SHA256,
			&job.State,
			&job.WorkerID,
			&job.CreatedAt,
			&job.StartedAt,
			&job.FinishedAt,
			&job.TimeoutSeconds,
			&job.ErrorText,
			&job.DebugMode,
			&job.GDBPort,
			&job.GDBHost,
			&job.GDBConnected,
			&job.GDBConnectedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

// RunMigrations creates the schema if it does not exist.
func (r *PostgresRepository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			job_id VARCHAR(36) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			sha256 CHAR(64) NOT NULL,
			state VARCHAR(20) NOT NULL,
			worker_id VARCHAR(255),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			started_at TIMESTAMPTZ,
			finished_at TIMESTAMPTZ,
			timeout_seconds INT NOT NULL DEFAULT 30,
			error_text TEXT,
			debug_mode BOOLEAN DEFAULT false,
			gdb_port INT,
			gdb_host VARCHAR(255),
			gdb_connected BOOLEAN DEFAULT false,
			gdb_connected_at TIMESTAMPTZ,
			metadata JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_user_id ON jobs(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state)`,
		`CREATE TABLE IF NOT EXISTS debug_sessions (
			id BIGSERIAL PRIMARY KEY,
			job_id VARCHAR(36) NOT NULL,
			user_id VARCHAR(255) NOT NULL,
			gdb_port INT,
			client_ip INET,
			connected_at TIMESTAMPTZ,
			disconnected_at TIMESTAMPTZ,
			commands_executed INT DEFAULT 0,
			FOREIGN KEY (job_id) REFERENCES jobs(job_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_debug_sessions_job_id ON debug_sessions(job_id)`,
	}

	for _, migration := range migrations {
		if _, err := r.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("running migration: %w", err)
		}
	}
	return nil
}
