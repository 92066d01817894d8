package posting

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"posterbot/internal/content"
	"posterbot/internal/eventbus"
	"posterbot/internal/task/cronspec"
	"posterbot/internal/task/scheduler"
	logx "posterbot/pkg/logx"
)

// Deps wires an Orchestrator. Users, Queue, Jobs and Transport are required.
type Deps struct {
	Users     UserStore
	Queue     Queue
	Jobs      Scheduler
	Transport Transport

	// Defaults returns the current app-wide defaults; nil means none.
	Defaults func() Defaults

	Log logx.Logger
	Bus eventbus.Bus
	Now func() time.Time
}

type Orchestrator struct {
	users    UserStore
	queue    Queue
	jobs     Scheduler
	tr       Transport
	defaults func() Defaults
	log      logx.Logger
	bus      eventbus.Bus
	now      func() time.Time

	locks *keyedMutex
}

func New(d Deps) *Orchestrator {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Defaults == nil {
		d.Defaults = func() Defaults { return Defaults{} }
	}
	return &Orchestrator{
		users:    d.Users,
		queue:    d.Queue,
		jobs:     d.Jobs,
		tr:       d.Transport,
		defaults: d.Defaults,
		log:      d.Log,
		bus:      d.Bus,
		now:      d.Now,
		locks:    newKeyedMutex(),
	}
}

// Register makes sure a user record exists and returns it.
func (o *Orchestrator) Register(ctx context.Context, userID int64) (UserConfig, error) {
	unlock := o.locks.Lock(userID)
	defer unlock()
	return o.users.EnsureUser(ctx, userID)
}

// Activate turns auto-posting on and (re)schedules the user's job.
//
// Unset destination or schedule fields are filled from the app defaults first.
// If the config is still incomplete it fails with ErrIncompleteConfiguration and
// schedules nothing. Calling it on an active user reschedules with the current config.
func (o *Orchestrator) Activate(ctx context.Context, userID int64) error {
	unlock := o.locks.Lock(userID)
	defer unlock()

	u, err := o.users.EnsureUser(ctx, userID)
	if err != nil {
		return errors.Wrapf(err, "load user %d", userID)
	}
	if u, err = o.applyDefaults(ctx, u); err != nil {
		return err
	}
	if !u.Complete() {
		err := errors.Wrapf(ErrIncompleteConfiguration, "user %d missing %s", userID, strings.Join(u.Missing(), " and "))
		return errors.WithHint(err, "Set a channel with /set_channel and a schedule with /set_schedule first.")
	}

	if err := o.users.SetAutoPosting(ctx, userID, true); err != nil {
		return errors.Wrapf(err, "enable auto-posting for user %d", userID)
	}
	if err := o.scheduleLocked(u); err != nil {
		if rbErr := o.users.SetAutoPosting(ctx, userID, false); rbErr != nil {
			err = errors.CombineErrors(err, rbErr)
		}
		return err
	}

	o.log.Info("auto-posting activated",
		logx.User(userID),
		logx.Int64("destination", u.DestinationID),
		logx.String("recurrence", u.Recurrence.String()),
	)
	return nil
}

// Deactivate turns auto-posting off and cancels the job. A missing job is fine.
func (o *Orchestrator) Deactivate(ctx context.Context, userID int64) error {
	unlock := o.locks.Lock(userID)
	defer unlock()

	setErr := o.users.SetAutoPosting(ctx, userID, false)
	if setErr != nil && !errors.Is(setErr, ErrUserNotFound) {
		return errors.Wrapf(setErr, "disable auto-posting for user %d", userID)
	}
	if err := o.jobs.Cancel(scheduler.JobID(userID)); err != nil && !errors.Is(err, scheduler.ErrJobNotFound) {
		return err
	}
	if setErr != nil {
		return setErr
	}

	o.log.Info("auto-posting deactivated", logx.User(userID))
	return nil
}

// OnFire is the body of every scheduled firing for userID.
//
// Exactly one notice reaches the user when the queue has nothing eligible or a
// delivery succeeds. A failed delivery leaves the item pending for the next firing.
func (o *Orchestrator) OnFire(ctx context.Context, userID int64) error {
	unlock := o.locks.Lock(userID)
	defer unlock()

	log := o.log.With(logx.User(userID))

	u, err := o.users.GetUser(ctx, userID)
	if err != nil {
		return o.fail(log, userID, "", errors.Wrapf(err, "load user %d", userID))
	}
	if u.DestinationID == 0 {
		return o.fail(log, userID, "", errors.Wrapf(ErrMissingDestination, "user %d", userID))
	}

	item, ok, err := o.queue.Select(ctx, userID)
	if err != nil {
		return o.fail(log, userID, "", errors.Wrapf(err, "select for user %d", userID))
	}
	if !ok {
		log.Info("no eligible content")
		o.notify(ctx, log, userID, MsgQueueEmpty)
		eventbus.Publish(o.bus, eventbus.PostEmpty, userID)
		return nil
	}

	if err := o.tr.Deliver(ctx, u.DestinationID, item.Payload); err != nil {
		err = errors.Mark(errors.Wrapf(err, "deliver item %s to %d", item.ID, u.DestinationID), ErrDelivery)
		return o.fail(log, userID, item.ID, err)
	}

	// Delivered but unmarked items are posted again next time.
	if _, err := o.queue.MarkDelivered(ctx, item, u.DestinationID, o.now()); err != nil {
		return o.fail(log, userID, item.ID, errors.Wrap(err, "delivered but not marked"))
	}

	stats, err := o.queue.Stats(ctx, userID)
	msg := deliveredMessage(stats)
	if err != nil {
		log.Warn("stats after delivery failed", logx.Err(err))
		msg = MsgPostDelivered
	}
	o.notify(ctx, log, userID, msg)

	log.Info("content delivered",
		logx.Item(item.ID),
		logx.String("readiness", string(item.Readiness)),
		logx.Int64("destination", u.DestinationID),
		logx.Int("remaining", stats.Pending()),
	)
	eventbus.Publish(o.bus, eventbus.PostDelivered, DeliveredEvent{
		UserID:      userID,
		ItemID:      item.ID,
		Destination: u.DestinationID,
		Remaining:   stats.Pending(),
	})
	return nil
}

// ReplayOnStartup schedules a job for every user with auto-posting on.
// Users with incomplete configs are skipped with a warning. Unreadable user
// records and failed schedules are combined into the error; they never keep the
// other users from being scheduled.
func (o *Orchestrator) ReplayOnStartup(ctx context.Context) (int, error) {
	users, err := o.users.ListUsers(ctx)
	var errs error
	if err != nil {
		if len(users) == 0 {
			return 0, errors.Wrap(err, "list users")
		}
		o.log.Warn("some user records could not be read", logx.Err(err))
		errs = errors.Wrap(err, "list users")
	}

	var scheduled int
	for _, u := range users {
		if !u.AutoPosting {
			continue
		}
		if !u.Complete() {
			o.log.Warn("skipping replay: incomplete config",
				logx.User(u.UserID),
				logx.String("missing", strings.Join(u.Missing(), ",")),
			)
			continue
		}
		unlock := o.locks.Lock(u.UserID)
		err := o.scheduleLocked(u)
		unlock()
		if err != nil {
			errs = errors.CombineErrors(errs, err)
			continue
		}
		scheduled++
	}

	o.log.Info("jobs replayed", logx.Int("scheduled", scheduled), logx.Int("users", len(users)))
	return scheduled, errs
}

// Submit queues a new item for userID and returns it with the updated stats.
func (o *Orchestrator) Submit(ctx context.Context, userID int64, payload string, readiness content.Readiness) (content.Item, content.Stats, error) {
	unlock := o.locks.Lock(userID)
	defer unlock()

	if _, err := o.users.EnsureUser(ctx, userID); err != nil {
		return content.Item{}, content.Stats{}, err
	}
	it, err := o.queue.Add(ctx, userID, payload, readiness)
	if err != nil {
		return content.Item{}, content.Stats{}, err
	}
	st, err := o.queue.Stats(ctx, userID)
	if err != nil {
		return it, content.Stats{}, err
	}
	o.log.Debug("content queued", logx.User(userID), logx.Item(it.ID), logx.String("readiness", string(it.Readiness)))
	return it, st, nil
}

// SetDestination stores the channel the user's posts go to.
// Firings read it fresh, so an active job needs no reschedule.
func (o *Orchestrator) SetDestination(ctx context.Context, userID, destination int64) error {
	if destination == 0 {
		return errors.WithHint(content.ErrInvalidDestination, "Use the numeric chat id of the channel, e.g. -1001234567890.")
	}
	unlock := o.locks.Lock(userID)
	defer unlock()

	if _, err := o.users.EnsureUser(ctx, userID); err != nil {
		return err
	}
	return o.users.SetDestination(ctx, userID, destination)
}

// SetSchedule parses raw, stores it and reschedules an active job.
func (o *Orchestrator) SetSchedule(ctx context.Context, userID int64, raw string) (cronspec.Recurrence, error) {
	rec, err := cronspec.ParseSchedule(raw)
	if err != nil {
		return cronspec.Recurrence{}, errors.WithHint(err, "Examples: 0 10 * * 1 (cron), 90m, 02:30, 3600.")
	}

	unlock := o.locks.Lock(userID)
	defer unlock()

	u, err := o.users.EnsureUser(ctx, userID)
	if err != nil {
		return cronspec.Recurrence{}, err
	}
	if err := o.users.SetRecurrence(ctx, userID, rec); err != nil {
		return cronspec.Recurrence{}, err
	}
	if u.AutoPosting {
		u.Recurrence = rec
		if err := o.scheduleLocked(u); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

// Status reports a user's config, queue stats and next firing.
func (o *Orchestrator) Status(ctx context.Context, userID int64) (Status, error) {
	unlock := o.locks.Lock(userID)
	defer unlock()

	u, err := o.users.EnsureUser(ctx, userID)
	if err != nil {
		return Status{}, err
	}
	st, err := o.queue.Stats(ctx, userID)
	if err != nil {
		return Status{}, err
	}
	out := Status{Config: u, Stats: st}
	if info, ok := o.jobs.Lookup(scheduler.JobID(userID)); ok {
		out.Active = true
		out.NextRun = info.Next
	}
	return out, nil
}

// Pending lists the user's undelivered items in selection order.
func (o *Orchestrator) Pending(ctx context.Context, userID int64) ([]content.Item, error) {
	return o.queue.Pending(ctx, userID)
}

// scheduleLocked replaces the user's job. Caller holds the user lock.
func (o *Orchestrator) scheduleLocked(u UserConfig) error {
	id := scheduler.JobID(u.UserID)
	if err := o.jobs.Cancel(id); err != nil && !errors.Is(err, scheduler.ErrJobNotFound) {
		return err
	}
	userID := u.UserID
	return o.jobs.Schedule(id, u.Recurrence, func(ctx context.Context) error {
		return o.OnFire(ctx, userID)
	})
}

// applyDefaults fills unset fields from the app defaults and persists them.
func (o *Orchestrator) applyDefaults(ctx context.Context, u UserConfig) (UserConfig, error) {
	def := o.defaults()
	if u.DestinationID == 0 && def.DestinationID != 0 {
		if err := o.users.SetDestination(ctx, u.UserID, def.DestinationID); err != nil {
			return u, errors.Wrapf(err, "apply default destination for user %d", u.UserID)
		}
		u.DestinationID = def.DestinationID
	}
	if u.Recurrence.IsZero() && !def.Recurrence.IsZero() {
		if err := o.users.SetRecurrence(ctx, u.UserID, def.Recurrence); err != nil {
			return u, errors.Wrapf(err, "apply default schedule for user %d", u.UserID)
		}
		u.Recurrence = def.Recurrence
	}
	return u, nil
}

func (o *Orchestrator) notify(ctx context.Context, log logx.Logger, userID int64, text string) {
	if err := o.tr.Notify(ctx, userID, text); err != nil {
		log.Warn("user notification failed", logx.Err(err))
	}
}

func (o *Orchestrator) fail(log logx.Logger, userID int64, itemID string, err error) error {
	if errors.Is(err, ErrDelivery) {
		log.Warn("firing failed", logx.Item(itemID), logx.Err(err))
	} else {
		log.Error("firing failed", logx.Item(itemID), logx.Err(err))
	}
	eventbus.Publish(o.bus, eventbus.PostFailed, FailedEvent{UserID: userID, ItemID: itemID, Error: err.Error()})
	return err
}
