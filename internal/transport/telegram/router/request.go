package router

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	kit "posterbot/internal/transport"
	logx "posterbot/pkg/logx"
)

// Request is one routed chat message.
type Request struct {
	Update   kit.Update
	Message  *kit.Message
	Chat     kit.ChatTarget
	FromID   int64
	FromName string
	// Command is the canonical command name, "" for plain text.
	Command string
	Args    []string
	// ArgText is everything after the command word, untouched.
	ArgText string
	ReqID   string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends text back to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, opt)
	return err
}

// ReplyHTML is Reply in HTML parse mode without link previews.
func (r *Request) ReplyHTML(ctx context.Context, text string) error {
	return r.Reply(ctx, text, &kit.SendOptions{ParseMode: kit.ParseHTML, DisablePreview: true})
}

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps h so the first middleware runs outermost.
func Chain(h HandlerFunc, mws ...Middleware) HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// WithTimeout bounds the handler's context. d <= 0 disables it.
func WithTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, req *Request) error {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, req)
		}
	}
}

// Recover turns a handler panic into an error.
func Recover() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					req.Logger.Error("handler panicked", logx.Panic(r, 3))
					err = errors.Newf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

const slowRequest = 750 * time.Millisecond

// Logging logs each request's outcome: failures at warn, slow ones at info.
func Logging() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			dur := time.Since(start)
			switch {
			case err != nil:
				req.Logger.Warn("request failed", logx.Duration("dur", dur), logx.Err(err))
			case dur >= slowRequest:
				req.Logger.Info("request slow", logx.Duration("dur", dur))
			default:
				req.Logger.Debug("request ok", logx.Duration("dur", dur))
			}
			return err
		}
	}
}
