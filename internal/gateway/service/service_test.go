package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/retroenv/retrogolib/assert"

	"github.com/tinunadno/stm32-emulator/internal/gateway/models"
	"github.com/tinunadno/stm32-emulator/internal/gateway/repository"
)

type fakePostgres struct {
	jobs         map[string]*models.Job
	createErr    error
	stateUpdates []models.JobState
}

func newFakePostgres() *fakePostgres {
	return &fakePostgres{jobs: make(map[string]*models.Job)}
}

func (f *fakePostgres) CreateJob(_ context.Context, job *models.Job) error {
	if f.createErr != nil {
		return f.createErr
	}
	stored := *job
	f.jobs[job.JobID] = &stored
	return nil
}

func (f *fakePostgres) GetJob(_ context.Context, jobID string) (*models.Job, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (f *fakePostgres) UpdateJobState(_ context.Context, jobID string,
	state models.JobState, _ *string) error {

	f.stateUpdates = append(f.stateUpdates, state)
	if job, ok := f.jobs[jobID]; ok {
		job.State = state
	}
	return nil
}

func (f *fakePostgres) GetJobsByUser(_ context.Context, userID string, _, _ int) ([]*models.Job, error) {
	var jobs []*models.Job
	for _, job := range f.jobs {
		if job.UserID == userID {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

type fakeKeyDB struct {
	enqueued   []string
	enqueueErr error
	cancelled  []string
	commands   []string
	hash       *repository.JobHash
}

func (f *fakeKeyDB) EnqueueJob(_ context.Context, job *models.Job) error {
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.enqueued = append(f.enqueued, job.JobID)
	return nil
}

func (f *fakeKeyDB) GetJobHash(_ context.Context, _ string) (*repository.JobHash, error) {
	if f.hash == nil {
		return nil, repository.ErrJobNotFound
	}
	return f.hash, nil
}

func (f *fakeKeyDB) CancelJob(_ context.Context, jobID string) error {
	f.cancelled = append(f.cancelled, jobID)
	return nil
}

func (f *fakeKeyDB) SendCommand(_ context.Context, workerID, command string, _ any) error {
	f.commands = append(f.commands, workerID+":"+command)
	return nil
}

func testJob(id string) *models.Job {
	return &models.Job{
		JobID:     id,
		UserID:    "user_test",
		SHA256:    "abc",
		State:     models.StateQueued,
		CreatedAt: time.Now(),
	}
}

func TestCreateJob(t *testing.T) {
	pg := newFakePostgres()
	kdb := &fakeKeyDB{}
	svc := NewJobService(pg, kdb)

	assert.NoError(t, svc.CreateJob(context.Background(), testJob("j1")))
	assert.NotNil(t, pg.jobs["j1"])
	assert.Equal(t, []string{"j1"}, kdb.enqueued)
}

func TestCreateJobEnqueueFailureMarksFailed(t *testing.T) {
	pg := newFakePostgres()
	kdb := &fakeKeyDB{enqueueErr: errors.New("queue down")}
	svc := NewJobService(pg, kdb)

	err := svc.CreateJob(context.Background(), testJob("j1"))
	assert.Error(t, err)
	assert.Equal(t, []models.JobState{models.StateFailed}, pg.stateUpdates)
}

func TestGetJobMergesRealtimeState(t *testing.T) {
	pg := newFakePostgres()
	kdb := &fakeKeyDB{
		hash: &repository.JobHash{
			State:        string(models.StateRunning),
			WorkerID:     "worker-1",
			GDBPort:      3333,
			GDBHost:      "10.0.0.5",
			GDBConnected: true,
		},
	}
	svc := NewJobService(pg, kdb)

	assert.NoError(t, pg.CreateJob(context.Background(), testJob("j1")))

	job, err := svc.GetJob(context.Background(), "j1")
	assert.NoError(t, err)
	assert.Equal(t, models.StateRunning, job.State)
	assert.Equal(t, "worker-1", *job.WorkerID)
	assert.Equal(t, 3333, *job.GDBPort)
	assert.Equal(t, "10.0.0.5", *job.GDBHost)
	assert.True(t, job.GDBConnected)
}

func TestGetJobNotFound(t *testing.T) {
	svc := NewJobService(newFakePostgres(), &fakeKeyDB{})

	_, err := svc.GetJob(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrJobNotFound))
}

func TestCancelJob(t *testing.T) {
	pg := newFakePostgres()
	kdb := &fakeKeyDB{}
	svc := NewJobService(pg, kdb)

	job := testJob("j1")
	worker := "worker-1"
	job.WorkerID = &worker
	assert.NoError(t, pg.CreateJob(context.Background(), job))

	assert.NoError(t, svc.CancelJob(context.Background(), "j1"))
	assert.Equal(t, []string{"j1"}, kdb.cancelled)
	assert.Equal(t, []string{"worker-1:cancel"}, kdb.commands)
	assert.Equal(t, models.StateCancelled, pg.jobs["j1"].State)
}

func TestCancelJobTerminalState(t *testing.T) {
	pg := newFakePostgres()
	svc := NewJobService(pg, &fakeKeyDB{})

	job := testJob("j1")
	job.State = models.StateCompleted
	assert.NoError(t, pg.CreateJob(context.Background(), job))

	err := svc.CancelJob(context.Background(), "j1")
	assert.True(t, errors.Is(err, ErrJobCannotBeCancelled))
}

func TestListJobsByUser(t *testing.T) {
	pg := newFakePostgres()
	svc := NewJobService(pg, &fakeKeyDB{})

	assert.NoError(t, pg.CreateJob(context.Background(), testJob("j1")))
	other := testJob("j2")
	other.UserID = "someone_else"
	assert.NoError(t, pg.CreateJob(context.Background(), other))

	jobs, err := svc.ListJobsByUser(context.Background(), "user_test", 50, 0)
	assert.NoError(t, err)
	assert.Len(t, jobs, 1)
	assert.Equal(t, "j1", jobs[0].JobID)
}
