package router

import "strings"

// parseCommand splits "/word@bot rest" into the lowercased word and the rest.
// ok is false when text is not a command.
func parseCommand(text string) (word, rest string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	body := text[1:]
	end := strings.IndexAny(body, " \t\n")
	if end < 0 {
		end = len(body)
	}
	word, rest = body[:end], strings.TrimSpace(body[end:])
	if at := strings.IndexByte(word, '@'); at >= 0 {
		word = word[:at]
	}
	return strings.ToLower(word), rest, true
}

// normalizeName lowercases and trims a command or alias; names with spaces are rejected.
func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "/")))
	if strings.ContainsAny(s, " \t\n") {
		return ""
	}
	return s
}
