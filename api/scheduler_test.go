package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignmentScheduler_SweepOncePerTerm(t *testing.T) {
	// GIVEN: One pupil and a calendar whose first term contains today
	// WHEN: Sweeping twice
	// THEN: Records are created on the first sweep only

	h := setupSchool(t)
	s := NewAssignmentScheduler(h, time.Hour)
	ctx := context.Background()

	stats := s.Sweep(ctx)
	assert.Equal(t, 1, stats.Terms)
	assert.Equal(t, 1, stats.Pupils)
	assert.Equal(t, 1, stats.Created)
	assert.Zero(t, stats.Failures)

	stats = s.Sweep(ctx)
	assert.Zero(t, stats.Created)

	records, err := h.Store.Get(ctx, "p1", "2025", "2025-t1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestAssignmentScheduler_OutsideAnyTerm(t *testing.T) {
	h := setupSchool(t)
	h.now = func() time.Time { return time.Date(2025, time.May, 15, 0, 0, 0, 0, time.UTC) }

	stats := NewAssignmentScheduler(h, time.Hour).Sweep(context.Background())
	assert.Zero(t, stats.Terms, "mid-May is a holiday")
	assert.Zero(t, stats.Created)
}

func TestAssignmentScheduler_DisabledAndStop(t *testing.T) {
	h := setupTestHandler(t)

	off := NewAssignmentScheduler(h, 0)
	off.Start()
	off.Stop()

	on := NewAssignmentScheduler(h, time.Hour)
	on.Start()
	on.Stop()
	on.Stop()

	assert.Equal(t, http.StatusOK, do(t, h, "GET", "/api/health", "", nil).Code)
}

func TestSweepEndpoint(t *testing.T) {
	// GIVEN: No scheduler set by main
	// WHEN: Posting to the sweep endpoint twice
	// THEN: The first call creates the term's record, the second is a no-op

	h := setupSchool(t)
	require.Nil(t, h.Scheduler)

	rec := do(t, h, "POST", "/api/assign/sweep", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody[SweepStats](t, rec)
	assert.Equal(t, 1, stats.Terms)
	assert.Equal(t, 1, stats.Created)
	require.NotNil(t, h.Scheduler)

	stats = decodeBody[SweepStats](t, do(t, h, "POST", "/api/assign/sweep", "", nil))
	assert.Zero(t, stats.Created)

	// A reset forgets the sweep session along with the records
	require.Equal(t, http.StatusOK, do(t, h, "POST", "/api/scenarios/reset", "", nil).Code)
	assert.Zero(t, decodeBody[SweepStats](t, do(t, h, "POST", "/api/assign/sweep", "", nil)).Pupils)
}
