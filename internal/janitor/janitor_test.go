package janitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"cairn/internal/checkpoint"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingPruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	pending []bool
}

func (p *recordingPruner) Prune(_ context.Context, cutoff time.Time, includePending bool) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, cutoff)
	p.pending = append(p.pending, includePending)
	return 2, nil
}

func (p *recordingPruner) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cutoffs)
}

func TestNewValidation(t *testing.T) {
	_, err := New(&recordingPruner{}, Config{Schedule: "@daily"})
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = New(&recordingPruner{}, Config{Schedule: "not a schedule", Retention: time.Hour})
	assert.ErrorContains(t, err, "invalid schedule")
}

func TestRunUsesRetentionCutoff(t *testing.T) {
	p := &recordingPruner{}
	j, err := New(p, Config{Schedule: "0 3 * * *", Retention: 24 * time.Hour, IncludePending: true})
	require.NoError(t, err)
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return now }

	n, err := j.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, p.cutoffs, 1)
	assert.Equal(t, now.Add(-24*time.Hour), p.cutoffs[0])
	assert.True(t, p.pending[0])
}

func TestScheduleFires(t *testing.T) {
	p := &recordingPruner{}
	j, err := New(p, Config{Schedule: "@every 1s", Retention: time.Hour})
	require.NoError(t, err)
	j.Start()
	j.Start()
	defer j.Stop()

	assert.False(t, j.NextRun().IsZero())
	assert.Eventually(t, func() bool { return p.calls() > 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestPrunesMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	require.NoError(t, store.Save(ctx, &checkpoint.Checkpoint{ThreadID: "old", UpdatedAt: time.Now().Add(-2 * time.Hour)}))
	require.NoError(t, store.Save(ctx, &checkpoint.Checkpoint{ThreadID: "new", UpdatedAt: time.Now()}))

	j, err := New(store, Config{Schedule: "@hourly", Retention: time.Hour})
	require.NoError(t, err)
	n, err := j.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, ids)

	// Stop before Start is a no-op.
	j.Stop()
}

func TestNormalizeSchedule(t *testing.T) {
	assert.Equal(t, "0 0 3 * * *", normalizeSchedule("0 3 * * *"))
	assert.Equal(t, "@daily", normalizeSchedule("@daily"))
	assert.Equal(t, "*/5 * * * * *", normalizeSchedule("*/5 * * * * *"))
}
