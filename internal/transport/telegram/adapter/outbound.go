package adapter

import (
	"context"
	"crypto/sha256"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	tele "gopkg.in/telebot.v4"

	kit "posterbot/internal/transport"
	logx "posterbot/pkg/logx"
)

// SendText sends text, split into chunks under the message limit.
// The returned ref points at the first chunk.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	var o kit.SendOptions
	if opt != nil {
		o = *opt
	}
	chat := &tele.Chat{ID: to.ChatID}
	topts := &tele.SendOptions{
		ParseMode:             tele.ParseMode(o.ParseMode),
		DisableWebPagePreview: o.DisablePreview,
		ThreadID:              to.ThreadID,
	}

	ref := kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID}
	for i, chunk := range splitText(text, textLimit, o.ParseMode) {
		if err := ctx.Err(); err != nil {
			return ref, err
		}
		msg, err := a.bot.Send(chat, chunk, topts)
		if err != nil {
			return ref, errors.Wrapf(classify(err), "send to %d", to.ChatID)
		}
		if i == 0 {
			ref.MessageID = msg.ID
		}
	}
	return ref, nil
}

// classify tags telegram errors for the caller's retry policy.
func classify(err error) error {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return kit.WithRetryAfter(err, time.Duration(flood.RetryAfter)*time.Second)
	}
	for _, perm := range []error{
		tele.ErrBlockedByUser,
		tele.ErrChatNotFound,
		tele.ErrKickedFromGroup,
		tele.ErrUserIsDeactivated,
		tele.ErrNotStartedByUser,
	} {
		if errors.Is(err, perm) {
			return kit.Permanent(err)
		}
	}
	return err
}

const (
	maxMenuCommands    = 100
	maxMenuDescription = 256
)

type menuState struct {
	mu  sync.Mutex
	sum [sha256.Size]byte
}

// UpdateMenuCommands publishes the bot command menu. Telegram is only called when the list changed.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	list, sum := menuCommands(cmds)

	a.menu.mu.Lock()
	defer a.menu.mu.Unlock()
	if sum == a.menu.sum {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.bot.SetCommands(list); err != nil {
		return errors.Wrap(err, "telegram setMyCommands")
	}
	a.menu.sum = sum
	a.log.Info("menu commands updated", logx.Int("count", len(list)))
	return nil
}

// menuCommands converts and clamps the menu to telegram limits and fingerprints the result.
func menuCommands(cmds []kit.BotCommand) ([]tele.Command, [sha256.Size]byte) {
	h := sha256.New()
	list := make([]tele.Command, 0, min(len(cmds), maxMenuCommands))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		if len(list) == maxMenuCommands {
			break
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		if len(d) > maxMenuDescription {
			d = d[:maxMenuDescription]
		}
		h.Write([]byte(c.Command + "\x00" + d + "\x00"))
		list = append(list, tele.Command{Text: c.Command, Description: d})
	}
	var sum [sha256.Size]byte
	copy(sum[:], h.Sum(nil))
	return list, sum
}
