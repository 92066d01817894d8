package posting

import (
	"context"
	"time"

	"posterbot/internal/content"
	"posterbot/internal/task/cronspec"
	"posterbot/internal/task/scheduler"
)

// UserConfig is one user's posting setup.
//
// DestinationID 0 and a zero Recurrence mean "not configured". AutoPosting is
// only ever turned on for complete configs.
type UserConfig struct {
	UserID        int64
	DestinationID int64
	Recurrence    cronspec.Recurrence
	AutoPosting   bool
}

// Complete reports whether the config has everything a posting job needs.
func (u UserConfig) Complete() bool {
	return u.DestinationID != 0 && !u.Recurrence.IsZero()
}

// Missing names the unset fields, for user-facing errors.
func (u UserConfig) Missing() []string {
	var out []string
	if u.DestinationID == 0 {
		out = append(out, "destination")
	}
	if u.Recurrence.IsZero() {
		out = append(out, "schedule")
	}
	return out
}

// UserStore persists user configs. Each setter touches a single field.
type UserStore interface {
	GetUser(ctx context.Context, userID int64) (UserConfig, error)
	// ListUsers may return the readable users together with an error describing
	// records it could not decode.
	ListUsers(ctx context.Context) ([]UserConfig, error)
	EnsureUser(ctx context.Context, userID int64) (UserConfig, error)
	SetDestination(ctx context.Context, userID, destination int64) error
	SetRecurrence(ctx context.Context, userID int64, rec cronspec.Recurrence) error
	SetAutoPosting(ctx context.Context, userID int64, enabled bool) error
}

// Queue is the subset of *content.Queue the orchestrator uses.
type Queue interface {
	Add(ctx context.Context, ownerID int64, payload string, readiness content.Readiness) (content.Item, error)
	Pending(ctx context.Context, ownerID int64) ([]content.Item, error)
	Select(ctx context.Context, ownerID int64) (content.Item, bool, error)
	MarkDelivered(ctx context.Context, item content.Item, destination int64, at time.Time) (content.Item, error)
	Stats(ctx context.Context, ownerID int64) (content.Stats, error)
}

// Scheduler is the subset of *scheduler.Service the orchestrator uses.
type Scheduler interface {
	Schedule(id string, rec cronspec.Recurrence, fn scheduler.JobFunc) error
	Cancel(id string) error
	Lookup(id string) (scheduler.JobInfo, bool)
}

// Transport sends content to destinations and notices to users.
type Transport interface {
	Deliver(ctx context.Context, destination int64, payload string) error
	Notify(ctx context.Context, userID int64, text string) error
}

// Defaults are the app-wide settings the setup flow fills unset user fields from.
type Defaults struct {
	DestinationID int64
	Recurrence    cronspec.Recurrence
}

// Status is a read-only view of one user for chat replies.
type Status struct {
	Config  UserConfig
	Stats   content.Stats
	Active  bool
	NextRun time.Time
}

// DeliveredEvent is published after a successful delivery.
type DeliveredEvent struct {
	UserID      int64  `json:"user_id"`
	ItemID      string `json:"item_id"`
	Destination int64  `json:"destination"`
	Remaining   int    `json:"remaining"`
}

// FailedEvent is published when a firing fails.
type FailedEvent struct {
	UserID int64  `json:"user_id"`
	ItemID string `json:"item_id,omitempty"`
	Error  string `json:"error"`
}
