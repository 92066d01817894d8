package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"posterbot/internal/content"
	"posterbot/internal/posting"
	"posterbot/internal/transport/telegram/router"
	logx "posterbot/pkg/logx"
	"posterbot/pkg/tgui"
)

const (
	MsgAutopostEnabled  = "Auto-posting enabled!"
	MsgAutopostDisabled = "Auto-posting disabled!"
	MsgInternalError    = "Something went wrong, please try again later."
)

func (b *Bot) handleStart(ctx context.Context, req *router.Request) error {
	if _, err := b.poster.Register(ctx, req.FromID); err != nil {
		return b.fail(ctx, req, err)
	}
	return req.Reply(ctx, fmt.Sprintf("Hello! Welcome to %s!", b.Name()), nil)
}

func (b *Bot) handleHelp(ctx context.Context, req *router.Request) error {
	text := "This is " + tgui.Esc(b.Name()).String() + ". Use /start to begin."
	if b.help != nil {
		if list := b.help(); list != "" {
			text += "\n\n" + list
		}
	}
	text += "\n\nSend any text to queue it. Start it with #finished, #unpolished or #draft (default) to set its readiness."
	return req.ReplyHTML(ctx, text)
}

func (b *Bot) handleStartAutopost(ctx context.Context, req *router.Request) error {
	if err := b.poster.Activate(ctx, req.FromID); err != nil {
		if errors.Is(err, posting.ErrIncompleteConfiguration) {
			return b.userError(ctx, req, "Auto-posting is not configured yet.", err)
		}
		return b.fail(ctx, req, err)
	}
	text := MsgAutopostEnabled
	if st, err := b.poster.Status(ctx, req.FromID); err == nil && !st.NextRun.IsZero() {
		text += "\nNext post: " + b.formatTime(st.NextRun)
	}
	return req.Reply(ctx, text, nil)
}

func (b *Bot) handleStopAutopost(ctx context.Context, req *router.Request) error {
	if err := b.poster.Deactivate(ctx, req.FromID); err != nil && !errors.Is(err, posting.ErrUserNotFound) {
		return b.fail(ctx, req, err)
	}
	return req.Reply(ctx, MsgAutopostDisabled, nil)
}

func (b *Bot) handleStatus(ctx context.Context, req *router.Request) error {
	st, err := b.poster.Status(ctx, req.FromID)
	if err != nil {
		return b.fail(ctx, req, err)
	}
	return req.ReplyHTML(ctx, b.renderStatus(st))
}

func (b *Bot) handleQueue(ctx context.Context, req *router.Request) error {
	items, err := b.poster.Pending(ctx, req.FromID)
	if err != nil {
		return b.fail(ctx, req, err)
	}
	return req.ReplyHTML(ctx, renderQueue(items, maxQueueListing))
}

func (b *Bot) handleSetChannel(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 1 {
		return req.Reply(ctx, "Usage: /set_channel <chat id>, e.g. /set_channel -1001234567890", nil)
	}
	dest, err := strconv.ParseInt(req.Args[0], 10, 64)
	if err != nil || dest == 0 {
		return b.userError(ctx, req, "That is not a chat id.",
			errors.WithHint(content.ErrInvalidDestination, "Use the numeric chat id of the channel, e.g. -1001234567890."))
	}
	if err := b.poster.SetDestination(ctx, req.FromID, dest); err != nil {
		return b.fail(ctx, req, err)
	}
	return req.Reply(ctx, fmt.Sprintf("Channel set to %d. Make sure the bot can post there.", dest), nil)
}

func (b *Bot) handleSetSchedule(ctx context.Context, req *router.Request) error {
	if req.ArgText == "" {
		return req.Reply(ctx, "Usage: /set_schedule <cron | interval>\nExamples: 0 10 * * 1, 90m, 02:30, 3600", nil)
	}
	rec, err := b.poster.SetSchedule(ctx, req.FromID, req.ArgText)
	if err != nil {
		if len(errors.GetAllHints(err)) > 0 {
			return b.userError(ctx, req, "Could not use that schedule.", err)
		}
		return b.fail(ctx, req, err)
	}
	text := "Schedule set: " + rec.String() + "."
	if st, err := b.poster.Status(ctx, req.FromID); err == nil && st.Active && !st.NextRun.IsZero() {
		text += "\nNext post: " + b.formatTime(st.NextRun)
	}
	return req.Reply(ctx, text, nil)
}

// handleText queues a plain message. A leading #finished, #unpolished or #draft sets readiness.
func (b *Bot) handleText(ctx context.Context, req *router.Request) error {
	if req.Message == nil {
		return nil
	}
	readiness, payload := readinessAndPayload(req.Message)
	item, stats, err := b.poster.Submit(ctx, req.FromID, payload, readiness)
	if err != nil {
		if errors.Is(err, content.ErrEmptyPayload) {
			return req.Reply(ctx, "Nothing to queue: the message is empty after the tag.", nil)
		}
		return b.fail(ctx, req, err)
	}
	return req.ReplyHTML(ctx, fmt.Sprintf(
		"Saved to queue (%s). Currently in queue: %d\n\n<b>Preview:</b>\n%s",
		item.Readiness, stats.Pending(), item.Payload,
	))
}

// HandleText is the router fallback for non-command messages.
func (b *Bot) HandleText() router.HandlerFunc { return b.handleText }

// userError replies with msg plus the hints carried by err. The error is not escalated.
func (b *Bot) userError(ctx context.Context, req *router.Request, msg string, err error) error {
	req.Logger.Debug("user error", logx.Err(err))
	if hints := errors.GetAllHints(err); len(hints) > 0 {
		msg += "\n" + strings.Join(hints, "\n")
	}
	return req.Reply(ctx, msg, nil)
}

// fail tells the user something broke and returns err for the request log.
func (b *Bot) fail(ctx context.Context, req *router.Request, err error) error {
	_ = req.Reply(ctx, MsgInternalError, nil)
	return err
}
