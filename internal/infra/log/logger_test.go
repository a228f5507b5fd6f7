package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLoggerProdWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(newLogger(&buf, "prod"), "poller")
	logger.Debug().Msg("скрыто")
	logger.Info().Str("room", "19:a").Msg("poller: tick")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("ожидали одну строку на уровне info, получили %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("ожидали JSON: %v", err)
	}
	if entry["component"] != "poller" || entry["room"] != "19:a" {
		t.Fatalf("неожиданные поля: %v", entry)
	}
}

func TestNewLoggerDevIsVerbose(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "dev")
	logger.Debug().Msg("debug line")
	if !strings.Contains(buf.String(), "debug line") {
		t.Fatalf("ожидали debug в dev-окружении, получили %q", buf.String())
	}
}
