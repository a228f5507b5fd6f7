package telegram

import "strings"

const messageLimit = 4096

// Split упаковывает строки рассылки в сообщения не длиннее limit рун.
// Строки не разрываются, кроме тех, что сами длиннее лимита.
func Split(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" || limit <= 0 {
		return nil
	}

	var (
		parts   []string
		current []string
		size    int
	)
	flush := func() {
		if len(current) > 0 {
			parts = append(parts, strings.Join(current, "\n"))
			current, size = nil, 0
		}
	}
	for _, line := range strings.Split(text, "\n") {
		runes := []rune(line)
		for len(runes) > limit {
			flush()
			parts = append(parts, string(runes[:limit]))
			runes = runes[limit:]
		}
		n := len(runes)
		extra := n
		if len(current) > 0 {
			extra++
		}
		if size+extra > limit {
			flush()
			extra = n
		}
		current = append(current, string(runes))
		size += extra
	}
	flush()
	return parts
}
