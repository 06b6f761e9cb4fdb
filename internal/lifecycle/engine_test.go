package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ewastePickup/internal/aggregate"
	"ewastePickup/internal/apperr"
	"ewastePickup/internal/testutil"
	"ewastePickup/models"
	"ewastePickup/repository"
)

// stepClock advances by one second on every reading.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	engine    *Engine
	requests  *repository.RequestRepository
	requester models.Principal
	other     models.Principal
	collector models.Principal
	rival     models.Principal
	admin     models.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	d := testutil.OpenInMemoryDB(t)
	users := repository.NewUserRepository(d)
	requests := repository.NewRequestRepository(d)
	e := NewEngine(requests, repository.NewRatingRepository(d), users,
		WithClock(&stepClock{now: time.Now().UTC()}))
	return &fixture{
		engine:    e,
		requests:  requests,
		requester: testutil.SeedUser(t, d, "amina", models.RoleRequester).Principal(),
		other:     testutil.SeedUser(t, d, "brian", models.RoleRequester).Principal(),
		collector: testutil.SeedUser(t, d, "c1", models.RoleCollector).Principal(),
		rival:     testutil.SeedUser(t, d, "c2", models.RoleCollector).Principal(),
		admin:     testutil.SeedUser(t, d, "root", models.RoleAdmin).Principal(),
	}
}

func (f *fixture) create(t *testing.T) *models.PickupRequest {
	t.Helper()
	r, err := f.engine.Create(context.Background(), testutil.Payload("Laptop"), f.requester)
	require.NoError(t, err)
	return r
}

func (f *fixture) assigned(t *testing.T) *models.PickupRequest {
	t.Helper()
	r := f.create(t)
	r, err := f.engine.Assign(context.Background(), r.ID, f.collector.ID, f.admin)
	require.NoError(t, err)
	return r
}

func assertKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, apperr.KindOf(err), "error: %v", err)
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.create(t)
	assert.Equal(t, models.StatusPending, r.Status)
	assert.Nil(t, r.AssignedCollectorID)
	assert.Nil(t, r.CompletedAt)
	assert.Equal(t, f.requester.ID, r.OwnerID)

	_, err := f.engine.Create(ctx, testutil.Payload("Laptop"), f.admin)
	assertKind(t, err, apperr.KindAuthorization)
	_, err = f.engine.Create(ctx, testutil.Payload("Laptop"), f.collector)
	assertKind(t, err, apperr.KindAuthorization)

	past := testutil.Payload("Laptop")
	past.PickupDate = time.Now().UTC().AddDate(0, 0, -2).Format(time.DateOnly)
	_, err = f.engine.Create(ctx, past, f.requester)
	assertKind(t, err, apperr.KindValidation)

	padded := testutil.Payload("Laptop")
	padded.PickupDate = " " + padded.PickupDate + " "
	pr, err := f.engine.Create(ctx, padded, f.requester)
	require.NoError(t, err)
	assert.Equal(t, testutil.Payload("Laptop").PickupDate, pr.PickupDate)

	zero := testutil.Payload("Laptop")
	zero.Quantity = 0
	_, err = f.engine.Create(ctx, zero, f.requester)
	assertKind(t, err, apperr.KindValidation)
}

func TestAssign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.create(t)

	_, err := f.engine.Assign(ctx, r.ID, f.collector.ID, f.collector)
	assertKind(t, err, apperr.KindAuthorization)
	_, err = f.engine.Assign(ctx, r.ID, f.collector.ID, f.requester)
	assertKind(t, err, apperr.KindAuthorization)
	_, err = f.engine.Assign(ctx, r.ID, 9999, f.admin)
	assertKind(t, err, apperr.KindNotFound)
	_, err = f.engine.Assign(ctx, r.ID, f.other.ID, f.admin)
	assertKind(t, err, apperr.KindInvalidAssignee)
	_, err = f.engine.Assign(ctx, 9999, f.collector.ID, f.admin)
	assertKind(t, err, apperr.KindNotFound)

	got, err := f.engine.Assign(ctx, r.ID, f.collector.ID, f.admin)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, got.Status)
	require.NotNil(t, got.AssignedCollectorID)
	assert.Equal(t, f.collector.ID, *got.AssignedCollectorID)
	assert.NotNil(t, got.AssignedAt)

	stored, err := f.engine.Get(ctx, r.ID, f.admin)
	require.NoError(t, err)
	assert.Equal(t, f.collector.ID, *stored.AssignedCollectorID)

	_, err = f.engine.Assign(ctx, r.ID, f.rival.ID, f.admin)
	assertKind(t, err, apperr.KindInvalidTransition)
	assert.Equal(t, string(models.StatusAssigned), apperr.CurrentOf(err))
}

func TestAssign_FailsFromEveryNonPendingStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assigned := f.assigned(t)
	completed := f.assigned(t)
	_, err := f.engine.SetStatus(ctx, completed.ID, models.StatusCompleted, f.collector)
	require.NoError(t, err)
	cancelled := f.create(t)
	_, err = f.engine.Cancel(ctx, cancelled.ID, f.requester)
	require.NoError(t, err)

	for _, tc := range []struct {
		id     int64
		status models.RequestStatus
	}{
		{assigned.ID, models.StatusAssigned},
		{completed.ID, models.StatusCompleted},
		{cancelled.ID, models.StatusCancelled},
	} {
		_, err := f.engine.Assign(ctx, tc.id, f.rival.ID, f.admin)
		assertKind(t, err, apperr.KindInvalidTransition)
		assert.Equal(t, string(tc.status), apperr.CurrentOf(err))
	}
}

func TestComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.assigned(t)

	_, err := f.engine.SetStatus(ctx, r.ID, models.StatusCompleted, f.rival)
	assertKind(t, err, apperr.KindAuthorization)
	_, err = f.engine.SetStatus(ctx, r.ID, models.StatusCompleted, f.requester)
	assertKind(t, err, apperr.KindAuthorization)

	done, err := f.engine.SetStatus(ctx, r.ID, models.StatusCompleted, f.collector)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, f.collector.ID, *done.CompletedBy)
	assert.Equal(t, f.collector.ID, *done.AssignedCollectorID)

	_, err = f.engine.SetStatus(ctx, r.ID, models.StatusCompleted, f.collector)
	assertKind(t, err, apperr.KindInvalidTransition)
	_, err = f.engine.SetStatus(ctx, r.ID, models.StatusCompleted, f.admin)
	assertKind(t, err, apperr.KindInvalidTransition)

	stored, err := f.requests.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, stored.CompletedAt.Equal(*done.CompletedAt), "completed_at never changes")
}

func TestComplete_AdminForce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assigned := f.assigned(t)
	a, err := f.engine.SetStatus(ctx, assigned.ID, models.StatusCompleted, f.admin)
	require.NoError(t, err)
	assert.Equal(t, f.collector.ID, *a.AssignedCollectorID)

	pending := f.create(t)
	_, err = f.engine.SetStatus(ctx, pending.ID, models.StatusCompleted, f.collector)
	assertKind(t, err, apperr.KindAuthorization)

	p, err := f.engine.SetStatus(ctx, pending.ID, models.StatusCompleted, f.admin)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, p.Status)
	assert.Nil(t, p.AssignedCollectorID)
	assert.Equal(t, f.admin.ID, *p.CompletedBy)
	assert.False(t, p.CompletedAt.Before(*a.CompletedAt), "completion timestamps never go backwards")
}

func TestSetStatus_Targets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.create(t)

	_, err := f.engine.SetStatus(ctx, r.ID, models.StatusPending, f.admin)
	assertKind(t, err, apperr.KindInvalidTransition)
	_, err = f.engine.SetStatus(ctx, r.ID, models.StatusAssigned, f.admin)
	assertKind(t, err, apperr.KindInvalidTransition)
	_, err = f.engine.SetStatus(ctx, r.ID, "lost", f.admin)
	assertKind(t, err, apperr.KindValidation)
	_, err = f.engine.SetStatus(ctx, 9999, models.StatusCompleted, f.admin)
	assertKind(t, err, apperr.KindNotFound)

	c, err := f.engine.SetStatus(ctx, r.ID, models.StatusCancelled, f.requester)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, c.Status)
	_, err = f.engine.SetStatus(ctx, r.ID, models.StatusCompleted, f.admin)
	assertKind(t, err, apperr.KindInvalidTransition)
}

func TestSetStatus_ReportsStatusOnlyToPermittedActors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.assigned(t)

	for _, target := range []models.RequestStatus{models.StatusPending, models.StatusAssigned} {
		_, err := f.engine.SetStatus(ctx, r.ID, target, f.other)
		assertKind(t, err, apperr.KindAuthorization)
		assert.Empty(t, apperr.CurrentOf(err))
		_, err = f.engine.SetStatus(ctx, r.ID, target, f.requester)
		assertKind(t, err, apperr.KindAuthorization)
		_, err = f.engine.SetStatus(ctx, r.ID, target, f.rival)
		assertKind(t, err, apperr.KindAuthorization)
		assert.Empty(t, apperr.CurrentOf(err))

		_, err = f.engine.SetStatus(ctx, r.ID, target, f.collector)
		assertKind(t, err, apperr.KindInvalidTransition)
		assert.Equal(t, string(models.StatusAssigned), apperr.CurrentOf(err))
	}

	got, err := f.requests.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, got.Status)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.create(t)
	_, err := f.engine.Cancel(ctx, r.ID, f.other)
	assertKind(t, err, apperr.KindAuthorization)
	_, err = f.engine.Cancel(ctx, r.ID, f.collector)
	assertKind(t, err, apperr.KindAuthorization)

	c, err := f.engine.Cancel(ctx, r.ID, f.requester)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, c.Status)
	assert.NotNil(t, c.CancelledAt)
	assert.Nil(t, c.AssignedCollectorID)

	_, err = f.engine.Cancel(ctx, r.ID, f.admin)
	assertKind(t, err, apperr.KindInvalidTransition)

	a := f.assigned(t)
	_, err = f.engine.Cancel(ctx, a.ID, f.admin)
	assertKind(t, err, apperr.KindInvalidTransition)
	assert.Equal(t, string(models.StatusAssigned), apperr.CurrentOf(err))

	byAdmin := f.create(t)
	_, err = f.engine.Cancel(ctx, byAdmin.ID, f.admin)
	require.NoError(t, err)
}

func TestEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.create(t)

	qty := 4
	brand := "Lenovo"
	got, err := f.engine.Edit(ctx, r.ID, models.PayloadPatch{Quantity: &qty, Brand: &brand}, f.requester)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Quantity)
	assert.Equal(t, "Lenovo", got.Brand)
	assert.Equal(t, "Laptop", got.ItemType)

	_, err = f.engine.Edit(ctx, r.ID, models.PayloadPatch{Quantity: &qty}, f.other)
	assertKind(t, err, apperr.KindAuthorization)
	_, err = f.engine.Edit(ctx, r.ID, models.PayloadPatch{Quantity: &qty}, f.admin)
	assertKind(t, err, apperr.KindAuthorization)

	zero := 0
	_, err = f.engine.Edit(ctx, r.ID, models.PayloadPatch{Quantity: &zero}, f.requester)
	assertKind(t, err, apperr.KindValidation)
	stored, err := f.requests.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.Quantity, "rejected edits write nothing")

	past := time.Now().UTC().AddDate(0, 0, -3).Format(time.DateOnly)
	_, err = f.engine.Edit(ctx, r.ID, models.PayloadPatch{PickupDate: &past}, f.requester)
	assertKind(t, err, apperr.KindValidation)

	_, err = f.engine.Assign(ctx, r.ID, f.collector.ID, f.admin)
	require.NoError(t, err)
	_, err = f.engine.Edit(ctx, r.ID, models.PayloadPatch{Quantity: &qty}, f.requester)
	assertKind(t, err, apperr.KindInvalidTransition)
}

func TestRate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.assigned(t)

	_, err := f.engine.Rate(ctx, r.ID, 5, "", f.requester)
	assertKind(t, err, apperr.KindInvalidTransition)

	_, err = f.engine.SetStatus(ctx, r.ID, models.StatusCompleted, f.collector)
	require.NoError(t, err)

	_, err = f.engine.Rate(ctx, r.ID, 6, "", f.requester)
	assertKind(t, err, apperr.KindValidation)
	_, err = f.engine.Rate(ctx, r.ID, 0, "", f.requester)
	assertKind(t, err, apperr.KindValidation)
	_, err = f.engine.Rate(ctx, r.ID, 4, "", f.other)
	assertKind(t, err, apperr.KindAuthorization)

	first, err := f.engine.Rate(ctx, r.ID, 3, "late", f.requester)
	require.NoError(t, err)
	second, err := f.engine.Rate(ctx, r.ID, 5, "on time after all", f.requester)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 5, second.Rating)

	got, err := f.engine.Rating(ctx, r.ID, f.collector)
	require.NoError(t, err)
	assert.Equal(t, "on time after all", got.Comment)
	_, err = f.engine.Rating(ctx, r.ID, f.other)
	assertKind(t, err, apperr.KindAuthorization)
}

func TestGetAndList_Scoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mine := f.create(t)
	theirs, err := f.engine.Create(ctx, testutil.Payload("Phone"), f.other)
	require.NoError(t, err)
	assigned := f.assigned(t)

	_, err = f.engine.Get(ctx, theirs.ID, f.requester)
	assertKind(t, err, apperr.KindAuthorization)
	_, err = f.engine.Get(ctx, mine.ID, f.collector)
	assertKind(t, err, apperr.KindAuthorization)
	_, err = f.engine.Get(ctx, assigned.ID, f.collector)
	require.NoError(t, err)
	_, err = f.engine.Get(ctx, 9999, f.admin)
	assertKind(t, err, apperr.KindNotFound)

	ids := func(rs []models.PickupRequest) []int64 {
		out := make([]int64, len(rs))
		for i, r := range rs {
			out[i] = r.ID
		}
		return out
	}
	all, err := f.engine.List(ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, []int64{assigned.ID, theirs.ID, mine.ID}, ids(all))

	own, err := f.engine.List(ctx, f.requester)
	require.NoError(t, err)
	assert.Equal(t, []int64{assigned.ID, mine.ID}, ids(own))

	work, err := f.engine.List(ctx, f.collector)
	require.NoError(t, err)
	assert.Equal(t, []int64{assigned.ID}, ids(work))

	none, err := f.engine.List(ctx, f.rival)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestConcurrentCompletionHasOneWinner(t *testing.T) {
	f := newFixture(t)
	r := f.assigned(t)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, fail int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(actor models.Principal) {
			defer wg.Done()
			_, err := f.engine.SetStatus(context.Background(), r.ID, models.StatusCompleted, actor)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if apperr.KindOf(err) == apperr.KindInvalidTransition {
				fail++
			}
		}([]models.Principal{f.collector, f.admin}[i%2])
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
	assert.Equal(t, 9, fail)
}

func TestEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stats := aggregate.NewService(f.requests, aggregate.BasisCreated)

	r1 := f.create(t)
	assert.Equal(t, models.StatusPending, r1.Status)

	r1, err := f.engine.Assign(ctx, r1.ID, f.collector.ID, f.admin)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, r1.Status)
	assert.Equal(t, f.collector.ID, *r1.AssignedCollectorID)

	r1, err = f.engine.SetStatus(ctx, r1.ID, models.StatusCompleted, f.collector)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, r1.Status)
	assert.NotNil(t, r1.CompletedAt)

	st, err := stats.DashboardStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DashboardStats{Total: 1, Completed: 1}, st)

	seq, err := stats.MonthlyReport(ctx, r1.CreatedAt.UTC().Format("2006-01"))
	require.NoError(t, err)
	var got []int64
	for r, err := range seq {
		require.NoError(t, err)
		got = append(got, r.ID)
	}
	assert.Equal(t, []int64{r1.ID}, got)
}

func TestMonotonicClock(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	readings := []time.Time{base, base.Add(-time.Hour), base.Add(time.Minute)}
	i := 0
	c := NewMonotonicClock(func() time.Time {
		t := readings[i]
		i++
		return t
	})
	assert.Equal(t, base, c.Now())
	assert.Equal(t, base, c.Now(), "a backwards step is clamped")
	assert.Equal(t, base.Add(time.Minute), c.Now())
}
