package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tinunadno/stm32-emulator/internal/gateway/models"
)

const pendingQueueKey = "jobs:pending"

// KeyDBRepository is the realtime job mirror and worker queue.
type KeyDBRepository struct {
	client *redis.Client
}

// NewKeyDBRepository connects a Redis client and verifies the connection.
func NewKeyDBRepository(ctx context.Context, addr, password string, db, poolSize int) (*KeyDBRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to KeyDB: %w", err)
	}

	return &KeyDBRepository{client: client}, nil
}

// Close closes the connection.
func (r *KeyDBRepository) Close() error {
	return r.client.Close()
}

// Client exposes the underlying client for health checks and SSE bridging.
func (r *KeyDBRepository) Client() *redis.Client {
	return r.client
}

// JobHash mirrors the realtime job fields kept in KeyDB.
type JobHash struct {
	State        string `redis:"state"`
	UserID       string `redis:"user_id"`
	SHA256       string `redis:"sha256"`
	CreatedAt    string `redis:"created_at"`
	Debug        bool   `redis:"debug"`
	WorkerID     string `redis:"worker_id"`
	StartedAt    string `redis:"started_at"`
	GDBPort      int    `redis:"gdb_port"`
	GDBHost      string `redis:"gdb_host"`
	GDBConnected bool   `redis:"gdb_connected"`
}

// EnqueueJob writes the job hash and pushes the id onto the pending queue
// in one pipeline.
func (r *KeyDBRepository) EnqueueJob(ctx context.Context, job *models.Job) error {
	pipe := r.client.Pipeline()

	jobData := map[string]any{
		"state":      string(job.State),
		"user_id":    job.UserID,
		"sha256":     job.SHA256,
		"created_at": job.CreatedAt.Format(time.RFC3339),
		"debug":      job.DebugMode,
	}
	if job.TimeoutSeconds > 0 {
		jobData["timeout_seconds"] = job.TimeoutSeconds
	}

	pipe.HSet(ctx, r.jobKey(job.JobID), jobData)
	pipe.LPush(ctx, pendingQueueKey, job.JobID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueueing job: %w", err)
	}
	return nil
}

// GetJobHash reads the realtime job fields.
func (r *KeyDBRepository) GetJobHash(ctx context.Context, jobID string) (*JobHash, error) {
	result, err := r.client.HGetAll(ctx, r.jobKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting job hash: %w", err)
	}
	if len(result) == 0 {
		return nil, ErrJobNotFound
	}

	hash := &JobHash{
		State:        result["state"],
		UserID:       result["user_id"],
		SHA256:       result["sha256"],
		CreatedAt:    result["created_at"],
		Debug:        isTruthy(result["debug"]),
		WorkerID:     result["worker_id"],
		StartedAt:    result["started_at"],
		GDBHost:      result["gdb_host"],
		GDBConnected: isTruthy(result["gdb_connected"]),
	}
	if port, err := strconv.Atoi(result["gdb_port"]); err == nil {
		hash.GDBPort = port
	}
	return hash, nil
}

// UpdateJobState updates the realtime state field.
func (r *KeyDBRepository) UpdateJobState(ctx context.Context, jobID string, state models.JobState) error {
	return r.client.HSet(ctx, r.jobKey(jobID), "state", string(state)).Err()
}

// CancelJob marks the job cancelled and drops it from the pending queue.
func (r *KeyDBRepository) CancelJob(ctx context.Context, jobID string) error {
	pipe := r.client.Pipeline()
	pipe.HSet(ctx, r.jobKey(jobID), "state", string(models.StateCancelled))
	pipe.LRem(ctx, pendingQueueKey, 0, jobID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cancelling job: %w", err)
	}
	return nil
}

// SendCommand pushes a command onto a worker's command channel.
func (r *KeyDBRepository) SendCommand(ctx context.Context, workerID, command string, payload any) error {
	msg := map[string]any{
		"command": command,
		"payload": payload,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshalling worker command: %w", err)
	}

	key := fmt.Sprintf("worker:%s:commands", workerID)
	if err := r.client.LPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("sending worker command: %w", err)
	}
	return nil
}

// PublishEvent publishes a job event on the job's pub/sub channel for SSE
// bridging.
func (r *KeyDBRepository) PublishEvent(ctx context.Context, jobID string, event *models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	if err := r.client.Publish(ctx, r.eventChannel(jobID), data).Err(); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}
	return nil
}

// SubscribeEvents subscribes to a job's event channel.
func (r *KeyDBRepository) SubscribeEvents(ctx context.Context, jobID string) *redis.PubSub {
	return r.client.Subscribe(ctx, r.eventChannel(jobID))
}

func (r *KeyDBRepository) jobKey(jobID string) string {
	return "job:" + jobID
}

func (r *KeyDBRepository) eventChannel(jobID string) string {
	return "events:" + jobID
}

func isTruthy(s string) bool {
	return s == "1" || s == "true"
}
