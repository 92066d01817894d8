package tgui

import (
	"fmt"
	"html"
	"strings"
)

// H is HTML that is already escaped for Telegram.
type H string

func (h H) String() string { return string(h) }

// Esc escapes text for Telegram HTML parse mode.
func Esc(s string) H { return H(html.EscapeString(s)) }

// Escf formats then escapes.
func Escf(format string, args ...any) H { return Esc(fmt.Sprintf(format, args...)) }

func wrap(tag string, inner H) H { return H("<" + tag + ">" + inner.String() + "</" + tag + ">") }

func B(s string) H    { return wrap("b", Esc(s)) }
func Code(s string) H { return wrap("code", Esc(s)) }

// Field renders "<b>label:</b> value" for status cards.
func Field(label string, value H) H {
	return H(B(label+":").String() + " " + value.String())
}

// Lines joins non-empty parts with newlines.
func Lines(parts ...H) H {
	ss := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p.String()) == "" {
			continue
		}
		ss = append(ss, p.String())
	}
	return H(strings.Join(ss, "\n"))
}
