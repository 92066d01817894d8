package bot

import (
	"strconv"
	"strings"
	"time"

	"posterbot/internal/content"
	"posterbot/internal/posting"
	kit "posterbot/internal/transport"
	"posterbot/pkg/tgui"
)

const (
	maxQueueListing = 20
	previewRunes    = 60
)

var readinessTags = map[string]content.Readiness{
	"#finished":   content.Finished,
	"#unpolished": content.Unpolished,
	"#draft":      content.Draft,
}

// readinessAndPayload reads a leading #finished, #unpolished or #draft from the
// plain text and returns the HTML body without it. Untagged text is a draft.
// The tag is recognized even when formatted, e.g. sent in bold.
func readinessAndPayload(m *kit.Message) (content.Readiness, string) {
	body := m.Body()
	words := strings.Fields(m.Text)
	if len(words) == 0 {
		return content.Draft, strings.TrimSpace(body)
	}
	tag := words[0]
	r, ok := readinessTags[strings.ToLower(tag)]
	if !ok {
		return content.Draft, strings.TrimSpace(body)
	}
	return r, dropLeadingTag(body, tag)
}

// dropLeadingTag removes the first visible text of body when it is tag, plus any
// formatting element that is left empty.
func dropLeadingTag(body, tag string) string {
	for i := 0; i < len(body); {
		switch c := body[i]; {
		case c == '<':
			end := strings.IndexByte(body[i:], '>')
			if end < 0 {
				return strings.TrimSpace(body)
			}
			i += end + 1
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case len(body)-i >= len(tag) && strings.EqualFold(body[i:i+len(tag)], tag):
			return dropEmptyElements(body[:i] + body[i+len(tag):])
		default:
			return strings.TrimSpace(body)
		}
	}
	return strings.TrimSpace(body)
}

// dropEmptyElements strips leading "<x ...></x>" pairs with only whitespace inside.
func dropEmptyElements(s string) string {
	for {
		s = strings.TrimSpace(s)
		if !strings.HasPrefix(s, "<") || strings.HasPrefix(s, "</") {
			return s
		}
		end := strings.IndexByte(s, '>')
		if end < 0 {
			return s
		}
		name, _, _ := strings.Cut(s[1:end], " ")
		rest := strings.TrimSpace(s[end+1:])
		closing := "</" + name + ">"
		if !strings.HasPrefix(rest, closing) {
			return s
		}
		s = rest[len(closing):]
	}
}

func (b *Bot) formatTime(t time.Time) string {
	return t.In(b.loc.Load()).Format("Mon 2006-01-02 15:04 MST")
}

func (b *Bot) renderStatus(st posting.Status) string {
	state := "off"
	if st.Config.AutoPosting {
		state = "on"
	}
	channel := tgui.Esc("not set (/set_channel)")
	if st.Config.DestinationID != 0 {
		channel = tgui.Code(strconv.FormatInt(st.Config.DestinationID, 10))
	}
	schedule := tgui.Esc("not set (/set_schedule)")
	if !st.Config.Recurrence.IsZero() {
		schedule = tgui.Code(st.Config.Recurrence.String())
	}
	var next tgui.H
	if st.Active && !st.NextRun.IsZero() {
		next = tgui.Field("Next post", tgui.Esc(b.formatTime(st.NextRun)))
	}
	s := st.Stats
	return tgui.Lines(
		tgui.Field("Auto-posting", tgui.Esc(state)),
		tgui.Field("Channel", channel),
		tgui.Field("Schedule", schedule),
		next,
		tgui.Field("Queue", tgui.Escf("%d pending (finished: %d, unpolished: %d, draft: %d), %d posted",
			s.Pending(), s.Finished, s.Unpolished, s.Draft, s.Delivered)),
	).String()
}

// renderQueue lists pending items in the order they would be posted.
func renderQueue(items []content.Item, limit int) string {
	if len(items) == 0 {
		return "Queue is empty."
	}
	lines := []tgui.H{tgui.Field("Pending posts", tgui.Escf("%d", len(items)))}
	for i, it := range items {
		if i == limit {
			lines = append(lines, tgui.Escf("... and %d more", len(items)-limit))
			break
		}
		lines = append(lines, tgui.Escf("%d. [%s] %s", i+1, it.Readiness, preview(it.Payload, previewRunes)))
	}
	return tgui.Lines(lines...).String()
}

// preview flattens payload to one line of plain text, cut at n runes.
func preview(payload string, n int) string {
	return tgui.TruncRunes(tgui.PlainText(payload), n)
}
