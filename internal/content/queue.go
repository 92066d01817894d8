package content

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Queue is the per-owner content queue on top of a Store.
type Queue struct {
	store Store
	now   func() time.Time
	newID func() string
}

type Option func(*Queue)

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithIDs overrides item id generation.
func WithIDs(newID func() string) Option {
	return func(q *Queue) { q.newID = newID }
}

func NewQueue(store Store, opts ...Option) *Queue {
	q := &Queue{
		store: store,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Add stores a new pending item. An empty readiness defaults to Draft.
func (q *Queue) Add(ctx context.Context, ownerID int64, payload string, readiness Readiness) (Item, error) {
	if strings.TrimSpace(payload) == "" {
		return Item{}, ErrEmptyPayload
	}
	if readiness == "" {
		readiness = Draft
	}
	if !readiness.Valid() {
		return Item{}, errors.Wrapf(ErrUnknownReadiness, "%q", readiness)
	}
	it := Item{
		ID:        q.newID(),
		OwnerID:   ownerID,
		Payload:   payload,
		Readiness: readiness,
		CreatedAt: q.now().UTC(),
	}
	if err := q.store.InsertItem(ctx, it); err != nil {
		return Item{}, errors.Wrap(err, "insert item")
	}
	return it, nil
}

// List returns all of the owner's items, delivered or not, in no particular order.
func (q *Queue) List(ctx context.Context, ownerID int64) ([]Item, error) {
	items, err := q.store.ListItems(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "list items")
	}
	return items, nil
}

// Pending returns undelivered items in selection order, drafts last.
func (q *Queue) Pending(ctx context.Context, ownerID int64) ([]Item, error) {
	items, err := q.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := items[:0]
	for _, it := range items {
		if !it.Delivered {
			out = append(out, it)
		}
	}
	sortForSelection(out)
	return out, nil
}

// Select returns the item the next firing should deliver, if any.
func (q *Queue) Select(ctx context.Context, ownerID int64) (Item, bool, error) {
	items, err := q.List(ctx, ownerID)
	if err != nil {
		return Item{}, false, err
	}
	it, ok := SelectNext(items)
	return it, ok, nil
}

// MarkDelivered records a successful delivery of item to destination.
// It fails with ErrAlreadyDelivered, mutating nothing, if the item was delivered before.
func (q *Queue) MarkDelivered(ctx context.Context, item Item, destination int64, at time.Time) (Item, error) {
	if item.Delivered {
		return item, errors.Wrapf(ErrAlreadyDelivered, "item %s", item.ID)
	}
	if destination == 0 {
		return item, ErrInvalidDestination
	}
	if at.IsZero() {
		at = q.now()
	}
	at = at.UTC()
	if err := q.store.MarkItemDelivered(ctx, item.ID, destination, at); err != nil {
		return item, errors.Wrapf(err, "mark item %s", item.ID)
	}
	item.Delivered = true
	item.DeliveredTo = destination
	item.DeliveredAt = at
	return item, nil
}

// Stats counts the owner's pending items by readiness, plus delivered items.
func (q *Queue) Stats(ctx context.Context, ownerID int64) (Stats, error) {
	st, err := q.store.ItemStats(ctx, ownerID)
	if err != nil {
		return Stats{}, errors.Wrap(err, "item stats")
	}
	return st, nil
}
