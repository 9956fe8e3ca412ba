package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all runtime settings, populated from the environment
type Config struct {
	// Каталог с данными (badger, sqlite, кэш агента)
	DataDir string `env:"DATA_DIR" envDefault:"./data"`

	// HTTP API реестра подписок
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	// Postgres URL; пусто — локальный sqlite в DataDir
	DatabaseURL string `env:"DATABASE_URL"`

	// VAPID credentials for Web Push
	VAPIDPublicKey  string `env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `env:"VAPID_PRIVATE_KEY"`
	VAPIDSubject    string `env:"VAPID_SUBJECT" envDefault:"mailto:admin@localhost"`

	// Telegram delivery channel; empty token disables it
	TelegramToken  string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID int64  `env:"TELEGRAM_CHAT_ID"`

	// Base URL of the registry this installation subscribes against;
	// empty means the built-in registry on ListenAddr
	RegistryBaseURL string `env:"REGISTRY_BASE_URL"`

	// Local reminder preferences
	NotificationTime string `env:"NOTIFICATION_TIME" envDefault:"09:00"`
	Timezone         string `env:"TZ" envDefault:"UTC"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads .env (if present) and parses the environment
func Load() (*Config, error) {
	// .env необязателен: в проде переменные приходят из окружения
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
