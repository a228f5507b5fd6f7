package domain

import "strings"

// IDKind описывает тип идентификатора платформы по его числовому префиксу.
type IDKind int

const (
	IDUnknown IDKind = iota
	IDUser
	IDBot
	IDRoom
)

const (
	userPrefix = "8:"
	botPrefix  = "28:"
	roomPrefix = "19:"
)

// KindOf определяет тип идентификатора.
func KindOf(id string) IDKind {
	switch {
	case strings.HasPrefix(id, userPrefix):
		return IDUser
	case strings.HasPrefix(id, botPrefix):
		return IDBot
	case strings.HasPrefix(id, roomPrefix):
		return IDRoom
	default:
		return IDUnknown
	}
}

// StripID убирает числовой префикс типа: "8:alice" -> "alice".
func StripID(id string) string {
	prefix, rest, ok := strings.Cut(id, ":")
	if !ok || prefix == "" {
		return id
	}
	for _, r := range prefix {
		if r < '0' || r > '9' {
			return id
		}
	}
	return rest
}

// SameID сравнивает идентификаторы без учёта префикса.
func SameID(a, b string) bool {
	return a != "" && b != "" && StripID(a) == StripID(b)
}
