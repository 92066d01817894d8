// Package bot maps chat commands and plain messages onto the posting orchestrator.
package bot

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"posterbot/internal/content"
	"posterbot/internal/posting"
	"posterbot/internal/task/cronspec"
	"posterbot/internal/transport/telegram/router"
	logx "posterbot/pkg/logx"
)

// Poster is the subset of *posting.Orchestrator the bot drives.
type Poster interface {
	Register(ctx context.Context, userID int64) (posting.UserConfig, error)
	Activate(ctx context.Context, userID int64) error
	Deactivate(ctx context.Context, userID int64) error
	Submit(ctx context.Context, userID int64, payload string, readiness content.Readiness) (content.Item, content.Stats, error)
	SetDestination(ctx context.Context, userID, destination int64) error
	SetSchedule(ctx context.Context, userID int64, raw string) (cronspec.Recurrence, error)
	Status(ctx context.Context, userID int64) (posting.Status, error)
	Pending(ctx context.Context, userID int64) ([]content.Item, error)
}

type Bot struct {
	poster Poster
	log    logx.Logger
	name   atomic.Value // string
	help   func() string
	loc    atomic.Pointer[time.Location]
}

type Options struct {
	// Name appears in the greeting and help. Default "posterbot".
	Name string
	// Help renders the command list appended to /help.
	Help func() string
	// Location formats next-run times. Default local.
	Location *time.Location
}

func New(poster Poster, log logx.Logger, opt Options) *Bot {
	if log.IsZero() {
		log = logx.Nop()
	}
	b := &Bot{poster: poster, log: log.With(logx.Comp("bot")), help: opt.Help}
	b.SetName(opt.Name)
	b.SetLocation(opt.Location)
	return b
}

// SetName changes the display name at runtime.
func (b *Bot) SetName(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "posterbot"
	}
	b.name.Store(name)
}

func (b *Bot) Name() string { return b.name.Load().(string) }

// SetLocation changes the zone next-run times are shown in. nil means local.
func (b *Bot) SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	b.loc.Store(loc)
}

func (b *Bot) Commands() []router.Command {
	return []router.Command{
		{Name: "start", Description: "Start the bot", Handle: b.handleStart},
		{Name: "help", Description: "Show this help message", Handle: b.handleHelp},
		{Name: "start_autopost", Description: "Enable auto-posting", Handle: b.handleStartAutopost},
		{Name: "stop_autopost", Description: "Disable auto-posting", Handle: b.handleStopAutopost},
		{Name: "status", Description: "Show schedule and queue", Handle: b.handleStatus},
		{Name: "queue", Description: "List pending posts", Usage: "/queue", Handle: b.handleQueue},
		{
			Name:        "set_channel",
			Aliases:     []string{"channel"},
			Description: "Set the channel posts go to",
			Usage:       "/set_channel <chat id>",
			Handle:      b.handleSetChannel,
		},
		{
			Name:        "set_schedule",
			Aliases:     []string{"schedule"},
			Description: "Set when posts go out",
			Usage:       "/set_schedule <cron | interval>",
			Handle:      b.handleSetSchedule,
		},
	}
}
