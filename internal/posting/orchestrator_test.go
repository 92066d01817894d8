package posting_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posterbot/internal/content"
	"posterbot/internal/eventbus"
	"posterbot/internal/posting"
	"posterbot/internal/storage"
	"posterbot/internal/task/cronspec"
	"posterbot/internal/task/scheduler"
	logx "posterbot/pkg/logx"
)

type sent struct {
	to   int64
	text string
}

type fakeTransport struct {
	mu         sync.Mutex
	delivered  []sent
	notices    []sent
	deliverErr error
	notifyErr  error
}

func (f *fakeTransport) Deliver(_ context.Context, dest int64, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deliverErr != nil {
		return f.deliverErr
	}
	f.delivered = append(f.delivered, sent{dest, payload})
	return nil
}

func (f *fakeTransport) Notify(_ context.Context, userID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, sent{userID, text})
	return f.notifyErr
}

func (f *fakeTransport) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivered), len(f.notices)
}

type fixture struct {
	store storage.Store
	queue *content.Queue
	jobs  *scheduler.Service
	tr    *fakeTransport
	bus   eventbus.Bus
	o     *posting.Orchestrator
}

func newFixture(t *testing.T, def posting.Defaults) *fixture {
	t.Helper()
	clk := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seq := 0
	store := storage.NewMemory()
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		store: store,
		queue: content.NewQueue(store,
			content.WithClock(func() time.Time { clk = clk.Add(time.Second); return clk }),
			content.WithIDs(func() string { seq++; return fmt.Sprintf("item-%02d", seq) }),
		),
		// Never started: jobs are registered but do not fire on their own.
		jobs: scheduler.New(scheduler.Config{Timezone: "UTC"}, nil, logx.Nop(), nil),
		tr:   &fakeTransport{},
		bus:  eventbus.New(),
	}
	f.o = posting.New(posting.Deps{
		Users:     store,
		Queue:     f.queue,
		Jobs:      f.jobs,
		Transport: f.tr,
		Defaults:  func() posting.Defaults { return def },
		Log:       logx.Nop(),
		Bus:       f.bus,
	})
	return f
}

func (f *fixture) configure(t *testing.T, userID, dest int64, schedule string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.o.SetDestination(ctx, userID, dest))
	_, err := f.o.SetSchedule(ctx, userID, schedule)
	require.NoError(t, err)
}

func TestOnFireDeliversHighestReadiness(t *testing.T) {
	t.Parallel()
	f := newFixture(t, posting.Defaults{})
	ctx := context.Background()
	f.configure(t, 7, -100, "1h")

	_, _, err := f.o.Submit(ctx, 7, "draft", content.Draft)
	require.NoError(t, err)
	_, _, err = f.o.Submit(ctx, 7, "rough", content.Unpolished)
	require.NoError(t, err)
	_, st, err := f.o.Submit(ctx, 7, "done", content.Finished)
	require.NoError(t, err)
	assert.Equal(t, content.Stats{Finished: 1, Unpolished: 1, Draft: 1}, st)

	events, unsub := f.bus.Subscribe(8)
	defer unsub()

	require.NoError(t, f.o.OnFire(ctx, 7))

	require.Len(t, f.tr.delivered, 1)
	assert.Equal(t, sent{-100, "done"}, f.tr.delivered[0])
	require.Len(t, f.tr.notices, 1)
	assert.Equal(t, int64(7), f.tr.notices[0].to)
	assert.Contains(t, f.tr.notices[0].text, posting.MsgPostDelivered)
	assert.Contains(t, f.tr.notices[0].text, "Remaining posts in queue: 2 (finished: 0, unpolished: 1, draft: 1)")

	st, err = f.queue.Stats(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, content.Stats{Unpolished: 1, Draft: 1, Delivered: 1}, st)

	ev := <-events
	assert.Equal(t, eventbus.PostDelivered, ev.Type)
	de, ok := ev.Data.(posting.DeliveredEvent)
	require.True(t, ok)
	assert.Equal(t, "item-03", de.ItemID)
	assert.Equal(t, 2, de.Remaining)

	// Draft is never eligible: one more delivery, then empty notices.
	require.NoError(t, f.o.OnFire(ctx, 7))
	require.NoError(t, f.o.OnFire(ctx, 7))
	d, n := f.tr.counts()
	assert.Equal(t, 2, d)
	assert.Equal(t, 3, n)
	assert.Equal(t, "rough", f.tr.delivered[1].text)
	assert.Equal(t, posting.MsgQueueEmpty, f.tr.notices[2].text)
}

func TestOnFireEmptyQueueNotifiesOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t, posting.Defaults{})
	ctx := context.Background()
	f.configure(t, 1, -5, "cron:0 10 * * *")

	events, unsub := f.bus.Subscribe(8)
	defer unsub()

	require.NoError(t, f.o.OnFire(ctx, 1))
	d, n := f.tr.counts()
	assert.Equal(t, 0, d)
	assert.Equal(t, 1, n)
	assert.Equal(t, sent{1, posting.MsgQueueEmpty}, f.tr.notices[0])
	assert.Equal(t, eventbus.PostEmpty, (<-events).Type)
}

func TestOnFireDeliveryErrorKeepsItemPending(t *testing.T) {
	t.Parallel()
	f := newFixture(t, posting.Defaults{})
	ctx := context.Background()
	f.configure(t, 2, -9, "30m")
	_, _, err := f.o.Submit(ctx, 2, "post", content.Finished)
	require.NoError(t, err)

	f.tr.deliverErr = errors.New("chat not found")
	err = f.o.OnFire(ctx, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, posting.ErrDelivery))

	pending, err := f.o.Pending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.False(t, pending[0].Delivered)
	_, n := f.tr.counts()
	assert.Equal(t, 0, n)

	f.tr.deliverErr = nil
	require.NoError(t, f.o.OnFire(ctx, 2))
	pending, err = f.o.Pending(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOnFireMissingDestination(t *testing.T) {
	t.Parallel()
	f := newFixture(t, posting.Defaults{})
	ctx := context.Background()
	_, err := f.o.Register(ctx, 3)
	require.NoError(t, err)
	_, _, err = f.o.Submit(ctx, 3, "post", content.Finished)
	require.NoError(t, err)

	err = f.o.OnFire(ctx, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, posting.ErrMissingDestination))
	d, n := f.tr.counts()
	assert.Zero(t, d)
	assert.Zero(t, n)
}

func TestOnFireNotifyFailureIsNotAnError(t *testing.T) {
	t.Parallel()
	f := newFixture(t, posting.Defaults{})
	ctx := context.Background()
	f.configure(t, 4, -1, "60")
	_, _, err := f.o.Submit(ctx, 4, "post", content.Finished)
	require.NoError(t, err)

	f.tr.notifyErr = errors.New("bot was blocked by the user")
	require.NoError(t, f.o.OnFire(ctx, 4))

	st, err := f.queue.Stats(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Delivered)
}

func TestActivateRequiresCompleteConfig(t *testing.T) {
	t.Parallel()
	f := newFixture(t, posting.Defaults{})
	ctx := context.Background()

	err := f.o.Activate(ctx, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, posting.ErrIncompleteConfiguration))
	assert.Contains(t, err.Error(), "destination and schedule")
	assert.NotEmpty(t, errors.GetAllHints(err))
	assert.False(t, f.jobs.Has(scheduler.JobID(10)))

	u, err := f.store.GetUser(ctx, 10)
	require.NoError(t, err)
	assert.False(t, u.AutoPosting)

	require.NoError(t, f.o.SetDestination(ctx, 10, -42))
	err = f.o.Activate(ctx, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing schedule")
}

func TestActivateAppliesDefaults(t *testing.T) {
	t.Parallel()
	hourly, err := cronspec.Every(time.Hour)
	require.NoError(t, err)
	f := newFixture(t, posting.Defaults{DestinationID: -77, Recurrence: hourly})
	ctx := context.Background()
	f.configure(t, 11, -11, "2h")
	require.NoError(t, f.o.Activate(ctx, 11))

	u, err := f.store.GetUser(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, int64(-11), u.DestinationID, "explicit destination kept")
	assert.Equal(t, 2*time.Hour, u.Recurrence.Interval())

	require.NoError(t, f.o.Activate(ctx, 12))
	u, err = f.store.GetUser(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, int64(-77), u.DestinationID)
	assert.Equal(t, time.Hour, u.Recurrence.Interval())
	assert.True(t, u.AutoPosting)
}

func TestActivateDeactivateCycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t, posting.Defaults{})
	ctx := context.Background()
	f.configure(t, 20, -20, "cron:0 9 * * 1")
	id := scheduler.JobID(20)

	for i := 0; i < 2; i++ {
		require.NoError(t, f.o.Activate(ctx, 20))
		assert.True(t, f.jobs.Has(id))
		st, err := f.o.Status(ctx, 20)
		require.NoError(t, err)
		assert.True(t, st.Active)
		assert.True(t, st.Config.AutoPosting)

		require.NoError(t, f.o.Deactivate(ctx, 20))
		assert.False(t, f.jobs.Has(id))
		st, err = f.o.Status(ctx, 20)
		require.NoError(t, err)
		assert.False(t, st.Active)
		assert.False(t, st.Config.AutoPosting)
	}

	// Repeated activation keeps a single job.
	require.NoError(t, f.o.Activate(ctx, 20))
	require.NoError(t, f.o.Activate(ctx, 20))
	assert.Len(t, f.jobs.Jobs(), 1)

	// Deactivating twice is harmless.
	require.NoError(t, f.o.Deactivate(ctx, 20))
	require.NoError(t, f.o.Deactivate(ctx, 20))
}

func TestSetScheduleReschedulesActiveJob(t *testing.T) {
	t.Parallel()
	f := newFixture(t, posting.Defaults{})
	ctx := context.Background()
	f.configure(t, 30, -30, "1h")
	require.NoError(t, f.o.Activate(ctx, 30))

	rec, err := f.o.SetSchedule(ctx, 30, "0 10 * * *")
	require.NoError(t, err)
	assert.Equal(t, cronspec.KindCron, rec.Kind())

	info, ok := f.jobs.Lookup(scheduler.JobID(30))
	require.True(t, ok)
	assert.True(t, info.Recurrence.Equal(rec))

	_, err = f.o.SetSchedule(ctx, 30, "every tuesday")
	require.Error(t, err)
	assert.True(t, errors.Is(err, cronspec.ErrInvalidSchedule))

	info, ok = f.jobs.Lookup(scheduler.JobID(30))
	require.True(t, ok)
	assert.True(t, info.Recurrence.Equal(rec), "invalid input leaves the job alone")
}

func TestSetDestinationRejectsZero(t *testing.T) {
	t.Parallel()
	f := newFixture(t, posting.Defaults{})
	err := f.o.SetDestination(context.Background(), 1, 0)
	assert.True(t, errors.Is(err, content.ErrInvalidDestination))
}

func TestReplayOnStartup(t *testing.T) {
	t.Parallel()
	f := newFixture(t, posting.Defaults{})
	ctx := context.Background()

	f.configure(t, 1, -1, "1h")
	require.NoError(t, f.o.Activate(ctx, 1))
	f.configure(t, 2, -2, "1h")
	_, err := f.o.Register(ctx, 3)
	require.NoError(t, err)
	// Auto-posting on but config lost: skipped.
	require.NoError(t, f.store.SetAutoPosting(ctx, 3, true))

	fresh := newFixture(t, posting.Defaults{})
	o := posting.New(posting.Deps{Users: f.store, Queue: f.queue, Jobs: fresh.jobs, Transport: f.tr})

	n, err := o.ReplayOnStartup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, fresh.jobs.Has(scheduler.JobID(1)))
	assert.False(t, fresh.jobs.Has(scheduler.JobID(2)))
	assert.False(t, fresh.jobs.Has(scheduler.JobID(3)))
}

// unreadableUser hides one user from ListUsers and reports it as undecodable.
type unreadableUser struct {
	storage.Store
	id int64
}

func (u unreadableUser) ListUsers(ctx context.Context) ([]posting.UserConfig, error) {
	all, err := u.Store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	var out []posting.UserConfig
	for _, c := range all {
		if c.UserID != u.id {
			out = append(out, c)
		}
	}
	return out, errors.Mark(errors.Newf("user %d recurrence: invalid cron expression", u.id), storage.ErrCorruptRecord)
}

func TestReplayOnStartupSurvivesUnreadableUser(t *testing.T) {
	t.Parallel()
	f := newFixture(t, posting.Defaults{})
	ctx := context.Background()
	for _, id := range []int64{1, 2, 3} {
		f.configure(t, id, -id, "1h")
		require.NoError(t, f.o.Activate(ctx, id))
	}

	fresh := newFixture(t, posting.Defaults{})
	o := posting.New(posting.Deps{Users: unreadableUser{Store: f.store, id: 2}, Queue: f.queue, Jobs: fresh.jobs, Transport: f.tr})

	n, err := o.ReplayOnStartup(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrCorruptRecord))
	assert.Equal(t, 2, n)
	assert.True(t, fresh.jobs.Has(scheduler.JobID(1)))
	assert.False(t, fresh.jobs.Has(scheduler.JobID(2)))
	assert.True(t, fresh.jobs.Has(scheduler.JobID(3)))
}

func TestOnFireSerializedPerUser(t *testing.T) {
	t.Parallel()
	f := newFixture(t, posting.Defaults{})
	ctx := context.Background()
	f.configure(t, 40, -40, "1h")
	for i := 0; i < 4; i++ {
		_, _, err := f.o.Submit(ctx, 40, fmt.Sprintf("p%d", i), content.Finished)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.o.OnFire(ctx, 40)
		}()
	}
	wg.Wait()

	// Each item went out exactly once.
	seen := map[string]int{}
	for _, s := range f.tr.delivered {
		seen[s.text]++
	}
	assert.Len(t, seen, 4)
	for text, c := range seen {
		assert.Equal(t, 1, c, text)
	}
	_, n := f.tr.counts()
	assert.Equal(t, 8, n)
}
