package inmemory

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contaflux/bankrecon/internal/jobs"
)

func TestQueue_PublishAndConsume(t *testing.T) {
	store := NewStore()
	queue := NewQueue(10, 2, store)
	defer queue.Close()

	var processed atomic.Int32
	done := make(chan struct{})

	err := queue.Start(context.Background(), func(ctx context.Context, job jobs.Job) error {
		if processed.Add(1) == 2 {
			close(done)
		}
		return nil
	})
	require.NoError(t, err)

	for _, period := range []string{"2026-02", "2026-03"} {
		err := queue.PublishReconcile(context.Background(), &jobs.ReconcileJob{
			ClientID:     "client-1",
			Period:       period,
			StatementURI: "gs://statements/client-1/" + period + ".json",
		})
		require.NoError(t, err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("jobs not processed in time")
	}
	assert.Equal(t, int32(2), processed.Load())
}

func TestQueue_PublishFillsDefaults(t *testing.T) {
	store := NewStore()
	queue := NewQueue(10, 1, store)
	defer queue.Close()

	job := &jobs.ReconcileJob{ClientID: "client-1", Period: "2026-03"}
	require.NoError(t, queue.PublishReconcile(context.Background(), job))

	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, jobs.JobStatusPending, job.Status)
	assert.Equal(t, 3, job.MaxRetries)
	assert.False(t, job.CreatedAt.IsZero())

	saved, err := store.GetJob(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.JobID, saved.JobID)
}

func TestQueue_PublishAfterCloseFails(t *testing.T) {
	queue := NewQueue(1, 1, NewStore())
	require.NoError(t, queue.Close())

	err := queue.PublishReconcile(context.Background(), &jobs.ReconcileJob{ClientID: "c", Period: "2026-03"})
	assert.Error(t, err)
}

func TestStore_ListJobsFilters(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.SaveJob(ctx, &jobs.ReconcileJob{JobID: "j1", ClientID: "client-1", Period: "2026-02", Status: jobs.JobStatusCompleted}))
	require.NoError(t, store.SaveJob(ctx, &jobs.ReconcileJob{JobID: "j2", ClientID: "client-1", Period: "2026-03", Status: jobs.JobStatusPending}))
	require.NoError(t, store.SaveJob(ctx, &jobs.ReconcileJob{JobID: "j3", ClientID: "client-2", Period: "2026-03", Status: jobs.JobStatusPending}))

	byClient, err := store.ListJobs(ctx, jobs.JobFilter{ClientID: "client-1"})
	require.NoError(t, err)
	assert.Len(t, byClient, 2)

	byStatus, err := store.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusPending})
	require.NoError(t, err)
	assert.Len(t, byStatus, 2)

	byBoth, err := store.ListJobs(ctx, jobs.JobFilter{ClientID: "client-1", Period: "2026-03", Status: jobs.JobStatusPending})
	require.NoError(t, err)
	require.Len(t, byBoth, 1)
	assert.Equal(t, "j2", byBoth[0].JobID)
}
