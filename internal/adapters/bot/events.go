package bot

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// Типы активности во входящих событиях.
const (
	ActivityMessage            = "message"
	ActivityAttachment         = "attachment"
	ActivityContactRelation    = "contactRelationUpdate"
	ActivityConversationUpdate = "conversationUpdate"
)

// EventTimeLayout — формат поля time: миллисекунды и буква Z.
const EventTimeLayout = "2006-01-02T15:04:05.000Z"

// Event — одно событие вебхука. Отсутствующие поля остаются пустыми.
type Event struct {
	From            string
	To              string
	Time            time.Time
	Activity        string
	Content         string
	ID              string
	Action          string
	FromDisplayName string
	MembersAdded    []string
	MembersRemoved  []string
}

var errNotObject = errors.New("event is not a JSON object")

// ParseEvents разбирает тело вебхука: объект или массив объектов.
// Элементы массива, которые не являются объектами, пропускаются.
func ParseEvents(body []byte) ([]Event, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty body")
	}
	var raws []json.RawMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, err
		}
	} else {
		if !json.Valid(trimmed) {
			return nil, errors.New("invalid JSON")
		}
		raws = []json.RawMessage{trimmed}
	}

	events := make([]Event, 0, len(raws))
	for _, raw := range raws {
		ev, err := parseEvent(raw)
		if err != nil {
			continue
		}
		events = append(events, ev)
	}
	if len(events) == 0 && len(raws) > 0 {
		return nil, errNotObject
	}
	return events, nil
}

func parseEvent(raw json.RawMessage) (Event, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Event{}, errNotObject
	}
	return Event{
		From:            str(fields["from"]),
		To:              str(fields["to"]),
		Time:            parseEventTime(str(fields["time"])),
		Activity:        str(fields["activity"]),
		Content:         str(fields["content"]),
		ID:              str(fields["id"]),
		Action:          str(fields["action"]),
		FromDisplayName: str(fields["fromDisplayName"]),
		MembersAdded:    strs(fields["membersAdded"]),
		MembersRemoved:  strs(fields["membersRemoved"]),
	}, nil
}

func str(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func strs(raw json.RawMessage) []string {
	var list []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &list) != nil {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s := str(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseEventTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(EventTimeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
