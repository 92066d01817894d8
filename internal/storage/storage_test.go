package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posterbot/internal/content"
	"posterbot/internal/posting"
	"posterbot/internal/task/cronspec"
	logx "posterbot/pkg/logx"
)

func drivers(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "db", "posterbot.db")}, logx.Nop())
	require.NoError(t, err)
	mem, err := Open(Config{Driver: "memory"}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sq.Close()
		_ = mem.Close()
	})
	return map[string]Store{"sqlite": sq, "memory": mem}
}

func item(id string, owner int64, r content.Readiness, created time.Time) content.Item {
	return content.Item{ID: id, OwnerID: owner, Payload: "payload " + id, Readiness: r, CreatedAt: created}
}

func TestItemsRoundTrip(t *testing.T) {
	t.Parallel()
	base := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)
	for name, st := range drivers(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, st.InsertItem(ctx, item("a", 1, content.Finished, base)))
			require.NoError(t, st.InsertItem(ctx, item("b", 1, content.Draft, base.Add(time.Second))))
			require.NoError(t, st.InsertItem(ctx, item("c", 2, content.Unpolished, base)))

			items, err := st.ListItems(ctx, 1)
			require.NoError(t, err)
			require.Len(t, items, 2)
			assert.Equal(t, "a", items[0].ID)
			assert.True(t, items[0].CreatedAt.Equal(base))
			assert.Equal(t, content.Finished, items[0].Readiness)

			got, err := st.GetItem(ctx, "c")
			require.NoError(t, err)
			assert.Equal(t, int64(2), got.OwnerID)

			_, err = st.GetItem(ctx, "zzz")
			assert.True(t, errors.Is(err, content.ErrItemNotFound))
		})
	}
}

func TestMarkItemDeliveredOnce(t *testing.T) {
	t.Parallel()
	at := time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)
	for name, st := range drivers(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, st.InsertItem(ctx, item("x", 1, content.Finished, at.Add(-time.Hour))))

			require.NoError(t, st.MarkItemDelivered(ctx, "x", -100, at))
			got, err := st.GetItem(ctx, "x")
			require.NoError(t, err)
			require.True(t, got.Delivered)
			require.Equal(t, int64(-100), got.DeliveredTo)
			require.True(t, got.DeliveredAt.Equal(at))

			err = st.MarkItemDelivered(ctx, "x", -200, at.Add(time.Hour))
			require.True(t, errors.Is(err, content.ErrAlreadyDelivered), "got %v", err)
			again, err := st.GetItem(ctx, "x")
			require.NoError(t, err)
			require.Equal(t, got, again)

			err = st.MarkItemDelivered(ctx, "missing", -100, at)
			require.True(t, errors.Is(err, content.ErrItemNotFound), "got %v", err)
		})
	}
}

func TestItemStats(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	for name, st := range drivers(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, st.InsertItem(ctx, item("f1", 1, content.Finished, now)))
			require.NoError(t, st.InsertItem(ctx, item("f2", 1, content.Finished, now)))
			require.NoError(t, st.InsertItem(ctx, item("u1", 1, content.Unpolished, now)))
			require.NoError(t, st.InsertItem(ctx, item("d1", 1, content.Draft, now)))
			require.NoError(t, st.InsertItem(ctx, item("o1", 2, content.Finished, now)))
			require.NoError(t, st.MarkItemDelivered(ctx, "f1", 5, now))

			stats, err := st.ItemStats(ctx, 1)
			require.NoError(t, err)
			require.Equal(t, content.Stats{Finished: 1, Unpolished: 1, Draft: 1, Delivered: 1}, stats)
		})
	}
}

func TestUserSetters(t *testing.T) {
	t.Parallel()
	rec, err := cronspec.Parse("0 10 * * 1")
	require.NoError(t, err)

	for name, st := range drivers(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := st.GetUser(ctx, 9)
			require.True(t, errors.Is(err, posting.ErrUserNotFound))
			require.True(t, errors.Is(st.SetDestination(ctx, 9, 1), posting.ErrUserNotFound))

			u, err := st.EnsureUser(ctx, 9)
			require.NoError(t, err)
			require.Equal(t, posting.UserConfig{UserID: 9}, u)
			require.False(t, u.Complete())

			require.NoError(t, st.SetDestination(ctx, 9, -1001))
			require.NoError(t, st.SetRecurrence(ctx, 9, rec))
			require.NoError(t, st.SetAutoPosting(ctx, 9, true))

			// EnsureUser keeps existing data.
			u, err = st.EnsureUser(ctx, 9)
			require.NoError(t, err)
			require.Equal(t, int64(-1001), u.DestinationID)
			require.True(t, u.Recurrence.Equal(rec))
			require.True(t, u.AutoPosting)
			require.True(t, u.Complete())

			_, err = st.EnsureUser(ctx, 3)
			require.NoError(t, err)
			users, err := st.ListUsers(ctx)
			require.NoError(t, err)
			require.Len(t, users, 2)
			require.Equal(t, int64(3), users[0].UserID)
		})
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "posterbot.db")
	ctx := context.Background()
	every, err := cronspec.EverySeconds(90)
	require.NoError(t, err)

	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	require.NoError(t, err)
	_, err = st.EnsureUser(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, st.SetRecurrence(ctx, 1, every))
	require.NoError(t, st.InsertItem(ctx, item("i", 1, content.Unpolished, time.Now())))
	require.NoError(t, st.Close())

	st, err = Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	u, err := st.GetUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, uint32(90), u.Recurrence.Seconds())
	items, err := st.ListItems(ctx, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "redis"}, logx.Nop())
	require.Error(t, err)
	_, err = Open(Config{Driver: "sqlite"}, logx.Nop())
	require.Error(t, err)
}

func TestSQLiteListUsersSkipsCorruptRows(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "posterbot.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	every, err := cronspec.EverySeconds(3600)
	require.NoError(t, err)
	for _, id := range []int64{1, 2, 3} {
		_, err := st.EnsureUser(ctx, id)
		require.NoError(t, err)
		require.NoError(t, st.SetRecurrence(ctx, id, every))
		require.NoError(t, st.SetAutoPosting(ctx, id, true))
	}
	_, err = st.(*sqliteStore).db.ExecContext(ctx, `UPDATE users SET recurrence = ? WHERE user_id = 2`, "61 * * * *")
	require.NoError(t, err)

	users, err := st.ListUsers(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorruptRecord))
	assert.Contains(t, err.Error(), "user 2")
	require.Len(t, users, 2)
	assert.Equal(t, int64(1), users[0].UserID)
	assert.Equal(t, int64(3), users[1].UserID)

	_, err = st.GetUser(ctx, 2)
	assert.True(t, errors.Is(err, ErrCorruptRecord))
}
