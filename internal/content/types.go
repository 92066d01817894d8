package content

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	ErrAlreadyDelivered   = errors.New("item already delivered")
	ErrItemNotFound       = errors.New("item not found")
	ErrEmptyPayload       = errors.New("empty payload")
	ErrUnknownReadiness   = errors.New("unknown readiness")
	ErrInvalidDestination = errors.New("invalid destination")
)

// Readiness is the author's judgement of how ready an item is to post.
type Readiness string

const (
	Draft      Readiness = "draft"
	Unpolished Readiness = "unpolished"
	Finished   Readiness = "finished"
)

// Readinesses lists all levels in selection order.
var Readinesses = []Readiness{Finished, Unpolished, Draft}

// ParseReadiness accepts any casing of the three level names.
func ParseReadiness(s string) (Readiness, error) {
	switch r := Readiness(strings.ToLower(strings.TrimSpace(s))); r {
	case Draft, Unpolished, Finished:
		return r, nil
	default:
		return "", errors.Wrapf(ErrUnknownReadiness, "%q", s)
	}
}

// Priority orders readiness levels for selection; lower is picked first.
func (r Readiness) Priority() int {
	switch r {
	case Finished:
		return 0
	case Unpolished:
		return 1
	default:
		return 2
	}
}

// Eligible reports whether items at this level may be posted automatically.
func (r Readiness) Eligible() bool { return r == Finished || r == Unpolished }

func (r Readiness) Valid() bool { return r == Draft || r == Unpolished || r == Finished }

// Item is one queued piece of content.
//
// DeliveredTo and DeliveredAt are set together with Delivered; zero values mean unset.
type Item struct {
	ID          string
	OwnerID     int64
	Payload     string
	Readiness   Readiness
	Delivered   bool
	DeliveredTo int64
	DeliveredAt time.Time
	CreatedAt   time.Time
}

// Pending reports whether the item still waits for delivery.
func (it Item) Pending() bool { return !it.Delivered }

// Stats summarizes one owner's queue.
type Stats struct {
	Finished   int
	Unpolished int
	Draft      int
	Delivered  int
}

// Pending is the number of undelivered items at any readiness.
func (s Stats) Pending() int { return s.Finished + s.Unpolished + s.Draft }

// Eligible is the number of undelivered items selection could pick.
func (s Stats) Eligible() int { return s.Finished + s.Unpolished }

// ByReadiness returns pending counts keyed by readiness level.
func (s Stats) ByReadiness() map[Readiness]int {
	return map[Readiness]int{Finished: s.Finished, Unpolished: s.Unpolished, Draft: s.Draft}
}

// Store persists items. Implementations live in internal/storage.
type Store interface {
	InsertItem(ctx context.Context, it Item) error
	ListItems(ctx context.Context, ownerID int64) ([]Item, error)
	GetItem(ctx context.Context, id string) (Item, error)
	// MarkItemDelivered flips an undelivered item to delivered in one conditional
	// update. It returns ErrAlreadyDelivered, leaving the row untouched, when the
	// item was already delivered, and ErrItemNotFound when it does not exist.
	MarkItemDelivered(ctx context.Context, id string, destination int64, at time.Time) error
	ItemStats(ctx context.Context, ownerID int64) (Stats, error)
}
