package router

import (
	"strings"

	kit "posterbot/internal/transport"
	"posterbot/pkg/tgui"
)

// sanitizeCommand converts a name into a telegram-safe command, [a-z0-9_]{1,32}.
func sanitizeCommand(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))

	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_' || r == '-' || r == ' ' || r == '/':
			if b.Len() > 0 && !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}

	out := strings.Trim(b.String(), "_")
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	return out
}

func buildMenu(cmds []Command) []kit.BotCommand {
	seen := map[string]bool{}
	out := make([]kit.BotCommand, 0, len(cmds))
	for _, c := range cmds {
		if c.Hidden {
			continue
		}
		name := sanitizeCommand(c.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		desc := strings.ReplaceAll(strings.TrimSpace(c.Description), "\n", " ")
		if desc == "" {
			desc = name
		}
		out = append(out, kit.BotCommand{Command: name, Description: desc})
		if len(out) >= 100 {
			break
		}
	}
	return out
}

// HelpHTML lists the visible commands for a /help reply.
func (m *Router) HelpHTML() string {
	var lines []tgui.H
	for _, c := range m.Commands() {
		usage := c.Usage
		if usage == "" {
			usage = "/" + c.Name
		}
		line := tgui.Code(usage)
		if c.Description != "" {
			line += " - " + tgui.Esc(c.Description)
		}
		lines = append(lines, line)
	}
	return tgui.Lines(lines...).String()
}
