package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// PlaceholderAppID — значение из шаблона конфига, с которым получить токен невозможно.
const PlaceholderAppID = "11111111-2222-3333-4444-666666666666"

// AppConfig описывает конфигурацию сервиса.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`

	Server struct {
		BindAddr        string        `envconfig:"BIND_ADDR" default:"0.0.0.0"`
		Port            int           `envconfig:"PORT" default:"8000"`
		TLSCertFile     string        `envconfig:"TLS_CERT_FILE"`
		TLSKeyFile      string        `envconfig:"TLS_KEY_FILE"`
		ShutdownToken   string        `envconfig:"SHUTDOWN_TOKEN"`
		ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
	} `envconfig:""`

	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	Auth struct {
		AppID     string `envconfig:"MS_APP_ID" default:"11111111-2222-3333-4444-666666666666"`
		AppSecret string `envconfig:"MS_APP_SECRET"`
		TokenURL  string `envconfig:"MS_OAUTH_URL" default:"https://login.microsoftonline.com/common/oauth2/v2.0/token"`
		Scope     string `envconfig:"MS_OAUTH_SCOPE" default:"https://graph.microsoft.com/.default"`
	} `envconfig:""`

	Chat struct {
		BotID       string        `envconfig:"BOT_ID"`
		APIURL      string        `envconfig:"CHAT_API_URL" default:"https://apis.skype.com"`
		SendRPS     float64       `envconfig:"SEND_RPS" default:"0"`
		SendTimeout time.Duration `envconfig:"SEND_TIMEOUT" default:"15s"`
		AdminIDs    []string      `envconfig:"ADMIN_IDS"`
	} `envconfig:""`

	Timeline struct {
		Source         string        `envconfig:"TIMELINE_SOURCE" default:"twitter"`
		TwitterAPIURL  string        `envconfig:"TWITTER_API_URL" default:"https://api.twitter.com"`
		BearerToken    string        `envconfig:"TWITTER_BEARER_TOKEN"`
		UserID         string        `envconfig:"TWITTER_USER_ID"`
		RSSURL         string        `envconfig:"TIMELINE_RSS_URL"`
		Limit          int           `envconfig:"TIMELINE_LIMIT" default:"20"`
		LinkPattern    string        `envconfig:"LINK_PATTERN" default:"^https?://(www\\.|m\\.)?imdb\\.com/title/tt\\d+"`
		TitleSeparator string        `envconfig:"TITLE_SEPARATOR" default:" - "`
		PollInterval   time.Duration `envconfig:"POLL_INTERVAL" default:"5m"`
	} `envconfig:""`

	Storage struct {
		Backend       string        `envconfig:"STORAGE_BACKEND" default:"file"`
		DataDir       string        `envconfig:"DATA_DIR" default:"./_cache"`
		PGDSN         string        `envconfig:"PG_DSN"`
		RedisAddr     string        `envconfig:"REDIS_ADDR"`
		RedisPassword string        `envconfig:"REDIS_PASSWORD"`
		RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
		SentRetention time.Duration `envconfig:"SENT_RETENTION" default:"0"`
	} `envconfig:""`

	Mirror struct {
		TelegramToken  string `envconfig:"TG_BOT_TOKEN"`
		TelegramChatID int64  `envconfig:"TG_MIRROR_CHAT_ID"`
	} `envconfig:""`
}

// Load загружает конфиг из .env и окружения.
func Load() AppConfig {
	cfg, err := load(".env")
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

func load(envFile string) (AppConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return AppConfig{}, fmt.Errorf("чтение %s: %w", envFile, err)
		}
	}
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate проверяет обязательные параметры.
func (c AppConfig) Validate() error {
	if strings.TrimSpace(c.Chat.BotID) == "" {
		return errors.New("BOT_ID is required")
	}
	switch c.Timeline.Source {
	case "twitter", "rss":
	default:
		return fmt.Errorf("unknown TIMELINE_SOURCE %q", c.Timeline.Source)
	}
	switch c.Storage.Backend {
	case "file", "postgres", "redis":
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}
	if c.Timeline.PollInterval <= 0 {
		return errors.New("POLL_INTERVAL must be positive")
	}
	return nil
}

// PlaceholderCredentials сообщает, что в конфиге остались учётные данные из шаблона.
func (c AppConfig) PlaceholderCredentials() bool {
	return c.Auth.AppID == PlaceholderAppID || strings.TrimSpace(c.Auth.AppID) == ""
}

// ListenAddr возвращает адрес HTTP сервера.
func (c AppConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddr, c.Server.Port)
}
