package adapter

import (
	"html"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"

	tele "gopkg.in/telebot.v4"
)

// entitiesToHTML renders text with its formatting entities as telegram HTML.
// Entity offsets count UTF-16 code units. Returns "" when nothing was rendered.
func entitiesToHTML(text string, ents tele.Entities) string {
	if len(ents) == 0 {
		return ""
	}
	units := utf16.Encode([]rune(text))

	sorted := append(tele.Entities(nil), ents...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Offset != sorted[j].Offset {
			return sorted[i].Offset < sorted[j].Offset
		}
		return sorted[i].Length > sorted[j].Length
	})

	opens := map[int][]string{}
	closes := map[int][]string{}
	rendered := false
	for _, e := range sorted {
		if e.Length <= 0 || e.Offset < 0 || e.Offset+e.Length > len(units) {
			continue
		}
		open, end, ok := entityTags(e)
		if !ok {
			continue
		}
		opens[e.Offset] = append(opens[e.Offset], open)
		at := e.Offset + e.Length
		closes[at] = append([]string{end}, closes[at]...)
		rendered = true
	}
	if !rendered {
		return ""
	}

	var (
		b   strings.Builder
		seg []uint16
	)
	flush := func() {
		b.WriteString(html.EscapeString(string(utf16.Decode(seg))))
		seg = seg[:0]
	}
	for i := 0; i <= len(units); i++ {
		if cs, ops := closes[i], opens[i]; len(cs)+len(ops) > 0 {
			flush()
			for _, c := range cs {
				b.WriteString(c)
			}
			for _, o := range ops {
				b.WriteString(o)
			}
		}
		if i < len(units) {
			seg = append(seg, units[i])
		}
	}
	flush()
	return b.String()
}

func entityTags(e tele.MessageEntity) (open, end string, ok bool) {
	switch string(e.Type) {
	case "bold":
		return "<b>", "</b>", true
	case "italic":
		return "<i>", "</i>", true
	case "underline":
		return "<u>", "</u>", true
	case "strikethrough":
		return "<s>", "</s>", true
	case "spoiler":
		return "<tg-spoiler>", "</tg-spoiler>", true
	case "code":
		return "<code>", "</code>", true
	case "pre":
		if e.Language != "" {
			return `<pre><code class="language-` + html.EscapeString(e.Language) + `">`, "</code></pre>", true
		}
		return "<pre>", "</pre>", true
	case "blockquote":
		return "<blockquote>", "</blockquote>", true
	case "text_link":
		return `<a href="` + html.EscapeString(e.URL) + `">`, "</a>", true
	case "text_mention":
		if e.User == nil {
			return "", "", false
		}
		return `<a href="tg://user?id=` + strconv.FormatInt(e.User.ID, 10) + `">`, "</a>", true
	}
	return "", "", false
}
