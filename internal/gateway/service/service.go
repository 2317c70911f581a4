// Package service implements the gateway's job operations over the
// persistent and realtime stores.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/tinunadno/stm32-emulator/internal/gateway/models"
	"github.com/tinunadno/stm32-emulator/internal/gateway/repository"
)

// Service-level errors.
var (
	ErrJobNotFound          = errors.New("job not found")
	ErrJobCannotBeCancelled = errors.New("job cannot be cancelled")
)

// JobService defines the job operations exposed to handlers.
type JobService interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	CancelJob(ctx context.Context, jobID string) error
	ListJobsByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Job, error)
}

// PostgresRepo is the persistent store surface the service needs.
type PostgresRepo interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	UpdateJobState(ctx context.Context, jobID string, state models.JobState, errorText *string) error
	GetJobsByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Job, error)
}

// KeyDBRepo is the realtime store surface the service needs.
type KeyDBRepo interface {
	EnqueueJob(ctx context.Context, job *models.Job) error
	GetJobHash(ctx context.Context, jobID string) (*repository.JobHash, error)
	CancelJob(ctx context.Context, jobID string) error
	SendCommand(ctx context.Context, workerID, command string, payload any) error
}

type jobService struct {
	pgRepo PostgresRepo
	keyDB  KeyDBRepo
}

// NewJobService returns a job service over the two stores.
func NewJobService(pgRepo PostgresRepo, keyDB KeyDBRepo) JobService {
	return &jobService{
		pgRepo: pgRepo,
		keyDB:  keyDB,
	}
}

// CreateJob persists the job and enqueues it for worker pickup. A failed
// enqueue marks the persistent record failed.
func (s *jobService) CreateJob(ctx context.Context, job *models.Job) error {
	if err := s.pgRepo.CreateJob(ctx, job); err != nil {
		return fmt.Errorf("creating job in PostgreSQL: %w", err)
	}

	if err := s.keyDB.EnqueueJob(ctx, job); err != nil {
		reason := "failed to enqueue job"
		_ = s.pgRepo.UpdateJobState(ctx, job.JobID, models.StateFailed, &reason)
		return fmt.Errorf("enqueueing job in KeyDB: %w", err)
	}

	return nil
}

// GetJob reads the authoritative record and merges the realtime fields
// when KeyDB has fresher state.
func (s *jobService) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := s.pgRepo.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("getting job: %w", err)
	}

	if hash, err := s.keyDB.GetJobHash(ctx, jobID); err == nil {
		if hash.State != "" {
			job.State = models.JobState(hash.State)
		}
		if hash.WorkerID != "" {
			job.WorkerID = &hash.WorkerID
		}
		if hash.GDBPort > 0 {
			job.GDBPort = &hash.GDBPort
		}
		if hash.GDBHost != "" {
			job.GDBHost = &hash.GDBHost
		}
		job.GDBConnected = hash.GDBConnected
	}

	return job, nil
}

// CancelJob cancels a queued or running job and notifies its worker.
func (s *jobService) CancelJob(ctx context.Context, jobID string) error {
	job, err := s.pgRepo.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return ErrJobNotFound
		}
		return fmt.Errorf("getting job: %w", err)
	}

	if job.State.Terminal() {
		return ErrJobCannotBeCancelled
	}

	if err := s.keyDB.CancelJob(ctx, jobID); err != nil {
		return fmt.Errorf("cancelling job in KeyDB: %w", err)
	}

	if err := s.pgRepo.UpdateJobState(ctx, jobID, models.StateCancelled, nil); err != nil {
		return fmt.Errorf("updating job state: %w", err)
	}

	if job.WorkerID != nil {
		_ = s.keyDB.SendCommand(ctx, *job.WorkerID, "cancel", map[string]string{
			"job_id": jobID,
		})
	}

	return nil
}

// ListJobsByUser returns a user's jobs, newest first.
func (s *jobService) ListJobsByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Job, error) {
	jobs, err := s.pgRepo.GetJobsByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	return jobs, nil
}
