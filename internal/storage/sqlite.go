package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"

	"posterbot/internal/content"
	"posterbot/internal/posting"
	"posterbot/internal/task/cronspec"
	logx "posterbot/pkg/logx"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	now func() time.Time
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create storage dir")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Warn("sqlite pragma failed", logx.String("pragma", pragma), logx.Err(err))
		}
	}

	st := &sqliteStore{db: db, log: log, now: time.Now}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, migrations); err != nil {
		return errors.Wrap(err, "migrate")
	}
	return nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- items ----

const itemColumns = `id, owner_id, payload, readiness, delivered, delivered_to, delivered_at, created_at`

func (s *sqliteStore) InsertItem(ctx context.Context, it content.Item) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO items(id, owner_id, payload, readiness, delivered, created_at) VALUES(?,?,?,?,0,?)`,
		it.ID, it.OwnerID, it.Payload, string(it.Readiness), formatTime(it.CreatedAt),
	)
	return err
}

func (s *sqliteStore) ListItems(ctx context.Context, ownerID int64) ([]content.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE owner_id = ? ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []content.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *sqliteStore) GetItem(ctx context.Context, id string) (content.Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return content.Item{}, errors.Wrapf(content.ErrItemNotFound, "item %s", id)
	}
	return it, err
}

func (s *sqliteStore) MarkItemDelivered(ctx context.Context, id string, destination int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE items SET delivered = 1, delivered_to = ?, delivered_at = ? WHERE id = ? AND delivered = 0`,
		destination, formatTime(at), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var delivered bool
	err = s.db.QueryRowContext(ctx, `SELECT delivered FROM items WHERE id = ?`, id).Scan(&delivered)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return errors.Wrapf(content.ErrItemNotFound, "item %s", id)
	case err != nil:
		return err
	default:
		return errors.Wrapf(content.ErrAlreadyDelivered, "item %s", id)
	}
}

func (s *sqliteStore) ItemStats(ctx context.Context, ownerID int64) (content.Stats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT readiness, delivered, COUNT(*) FROM items WHERE owner_id = ? GROUP BY readiness, delivered`, ownerID)
	if err != nil {
		return content.Stats{}, err
	}
	defer rows.Close()

	var st content.Stats
	for rows.Next() {
		var (
			r         string
			delivered bool
			n         int
		)
		if err := rows.Scan(&r, &delivered, &n); err != nil {
			return content.Stats{}, err
		}
		addToStats(&st, content.Readiness(r), delivered, n)
	}
	return st, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(sc scanner) (content.Item, error) {
	var (
		it          content.Item
		readiness   string
		deliveredTo sql.NullInt64
		deliveredAt sql.NullString
		createdAt   string
	)
	if err := sc.Scan(&it.ID, &it.OwnerID, &it.Payload, &readiness, &it.Delivered, &deliveredTo, &deliveredAt, &createdAt); err != nil {
		return content.Item{}, err
	}
	r, err := content.ParseReadiness(readiness)
	if err != nil {
		return content.Item{}, errors.Mark(errors.Wrapf(err, "item %s", it.ID), ErrCorruptRecord)
	}
	it.Readiness = r
	if it.CreatedAt, err = parseTime(createdAt); err != nil {
		return content.Item{}, err
	}
	if it.Delivered {
		if !deliveredTo.Valid || !deliveredAt.Valid {
			return content.Item{}, errors.Mark(errors.Newf("item %s delivered without destination or time", it.ID), ErrCorruptRecord)
		}
		it.DeliveredTo = deliveredTo.Int64
		if it.DeliveredAt, err = parseTime(deliveredAt.String); err != nil {
			return content.Item{}, err
		}
	}
	return it, nil
}

// ---- users ----

const userColumns = `user_id, destination_id, recurrence, auto_posting`

func (s *sqliteStore) GetUser(ctx context.Context, userID int64) (posting.UserConfig, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = ?`, userID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return posting.UserConfig{}, errors.Wrapf(posting.ErrUserNotFound, "user %d", userID)
	}
	return u, err
}

// ListUsers skips rows that fail to decode and reports them, marked
// ErrCorruptRecord, in the error returned next to the decodable users.
func (s *sqliteStore) ListUsers(ctx context.Context) ([]posting.UserConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out     []posting.UserConfig
		corrupt error
	)
	for rows.Next() {
		u, err := scanUser(rows)
		switch {
		case errors.Is(err, ErrCorruptRecord):
			corrupt = errors.CombineErrors(corrupt, err)
			continue
		case err != nil:
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, corrupt
}

func (s *sqliteStore) EnsureUser(ctx context.Context, userID int64) (posting.UserConfig, error) {
	now := formatTime(s.now())
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO users(user_id, created_at, updated_at) VALUES(?,?,?) ON CONFLICT(user_id) DO NOTHING`,
		userID, now, now,
	); err != nil {
		return posting.UserConfig{}, err
	}
	return s.GetUser(ctx, userID)
}

func (s *sqliteStore) SetDestination(ctx context.Context, userID, destination int64) error {
	return s.setField(ctx, userID, "destination_id", destination)
}

func (s *sqliteStore) SetRecurrence(ctx context.Context, userID int64, rec cronspec.Recurrence) error {
	b, err := rec.MarshalText()
	if err != nil {
		return err
	}
	return s.setField(ctx, userID, "recurrence", string(b))
}

func (s *sqliteStore) SetAutoPosting(ctx context.Context, userID int64, enabled bool) error {
	return s.setField(ctx, userID, "auto_posting", enabled)
}

// setField updates one column. column is always a constant from this file.
func (s *sqliteStore) setField(ctx context.Context, userID int64, column string, value any) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET `+column+` = ?, updated_at = ? WHERE user_id = ?`,
		value, formatTime(s.now()), userID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(posting.ErrUserNotFound, "user %d", userID)
	}
	return nil
}

func scanUser(sc scanner) (posting.UserConfig, error) {
	var (
		u   posting.UserConfig
		rec string
	)
	if err := sc.Scan(&u.UserID, &u.DestinationID, &rec, &u.AutoPosting); err != nil {
		return posting.UserConfig{}, err
	}
	if err := u.Recurrence.UnmarshalText([]byte(rec)); err != nil {
		return posting.UserConfig{}, errors.Mark(errors.Wrapf(err, "user %d recurrence", u.UserID), ErrCorruptRecord)
	}
	return u, nil
}
