package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"posterbot/internal/content"
	"posterbot/internal/posting"
	"posterbot/internal/task/cronspec"
)

type memStore struct {
	mu     sync.Mutex
	closed bool
	items  map[string]content.Item
	order  []string // insertion order, for stable listing
	users  map[int64]posting.UserConfig
}

// NewMemory returns an empty in-process store.
func NewMemory() Store {
	return &memStore{
		items: map[string]content.Item{},
		users: map[int64]posting.UserConfig{},
	}
}

func (s *memStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *memStore) InsertItem(_ context.Context, it content.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.items[it.ID]; ok {
		return errors.Newf("item %s already exists", it.ID)
	}
	s.items[it.ID] = it
	s.order = append(s.order, it.ID)
	return nil
}

func (s *memStore) ListItems(_ context.Context, ownerID int64) ([]content.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	var out []content.Item
	for _, id := range s.order {
		if it := s.items[id]; it.OwnerID == ownerID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *memStore) GetItem(_ context.Context, id string) (content.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return content.Item{}, ErrClosed
	}
	it, ok := s.items[id]
	if !ok {
		return content.Item{}, errors.Wrapf(content.ErrItemNotFound, "item %s", id)
	}
	return it, nil
}

func (s *memStore) MarkItemDelivered(_ context.Context, id string, destination int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	it, ok := s.items[id]
	if !ok {
		return errors.Wrapf(content.ErrItemNotFound, "item %s", id)
	}
	if it.Delivered {
		return errors.Wrapf(content.ErrAlreadyDelivered, "item %s", id)
	}
	it.Delivered = true
	it.DeliveredTo = destination
	it.DeliveredAt = at
	s.items[id] = it
	return nil
}

func (s *memStore) ItemStats(_ context.Context, ownerID int64) (content.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return content.Stats{}, ErrClosed
	}
	var st content.Stats
	for _, it := range s.items {
		if it.OwnerID != ownerID {
			continue
		}
		addToStats(&st, it.Readiness, it.Delivered, 1)
	}
	return st, nil
}

func addToStats(st *content.Stats, r content.Readiness, delivered bool, n int) {
	if delivered {
		st.Delivered += n
		return
	}
	switch r {
	case content.Finished:
		st.Finished += n
	case content.Unpolished:
		st.Unpolished += n
	default:
		st.Draft += n
	}
}

func (s *memStore) GetUser(_ context.Context, userID int64) (posting.UserConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return posting.UserConfig{}, ErrClosed
	}
	u, ok := s.users[userID]
	if !ok {
		return posting.UserConfig{}, errors.Wrapf(posting.ErrUserNotFound, "user %d", userID)
	}
	return u, nil
}

func (s *memStore) ListUsers(_ context.Context) ([]posting.UserConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]posting.UserConfig, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *memStore) EnsureUser(_ context.Context, userID int64) (posting.UserConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return posting.UserConfig{}, ErrClosed
	}
	u, ok := s.users[userID]
	if !ok {
		u = posting.UserConfig{UserID: userID}
		s.users[userID] = u
	}
	return u, nil
}

func (s *memStore) update(userID int64, fn func(u *posting.UserConfig)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	u, ok := s.users[userID]
	if !ok {
		return errors.Wrapf(posting.ErrUserNotFound, "user %d", userID)
	}
	fn(&u)
	s.users[userID] = u
	return nil
}

func (s *memStore) SetDestination(_ context.Context, userID, destination int64) error {
	return s.update(userID, func(u *posting.UserConfig) { u.DestinationID = destination })
}

func (s *memStore) SetRecurrence(_ context.Context, userID int64, rec cronspec.Recurrence) error {
	return s.update(userID, func(u *posting.UserConfig) { u.Recurrence = rec })
}

func (s *memStore) SetAutoPosting(_ context.Context, userID int64, enabled bool) error {
	return s.update(userID, func(u *posting.UserConfig) { u.AutoPosting = enabled })
}
