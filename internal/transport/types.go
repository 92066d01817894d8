// Package transport holds the chat-platform-neutral types the bot is written against.
package transport

import (
	"context"
	"html"
)

// ParseHTML selects Telegram's HTML subset for SendOptions.ParseMode.
const ParseHTML = "HTML"

type UpdateKind string

const UpdateMessage UpdateKind = "message"

// Update is one inbound event. Message is set for UpdateMessage.
type Update struct {
	Kind    UpdateKind
	Message *Message
}

type Message struct {
	ID       int
	ChatID   int64
	ThreadID int // forum topic, 0 outside forums

	FromID       int64
	FromUsername string
	FromName     string

	Text string
	// HTML re-renders Text with the message entities (bold, links, ...).
	// It is empty when the message had no entities.
	HTML    string
	IsGroup bool
}

// Body is the message as Telegram HTML: the entity rendering when there is one,
// else the escaped plain text.
func (m *Message) Body() string {
	if m.HTML == "" {
		return html.EscapeString(m.Text)
	}
	return m.HTML
}

// Target addresses a reply to the message's chat and thread.
func (m *Message) Target() ChatTarget {
	return ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Adapter is a running connection to the chat platform.
// Start forwards inbound updates to out until Stop.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// BotCommand is one entry of the platform command menu.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters whose platform shows a command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
