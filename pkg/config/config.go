package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Env holds process-level configuration read from the environment.
type Env struct {
	Debug    bool   `env:"-"`
	Database string `env:"DICEROBOT_DATABASE" envDefault:"dicerobot.db"`
	LogDir   string `env:"DICEROBOT_LOG_DIR" envDefault:"logs"`
	LogLevel string `env:"DICEROBOT_LOG_LEVEL" envDefault:"INFO"`
	Host     string `env:"DICEROBOT_HOST" envDefault:"0.0.0.0"`
	Port     int    `env:"DICEROBOT_PORT" envDefault:"9500"`
}

func (e *Env) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// LoadEnv reads an optional .env file (never overriding variables that are
// already set) and parses the environment.
func LoadEnv(envFile string) (*Env, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg := &Env{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Presence alone enables debug, whatever the value.
	_, cfg.Debug = os.LookupEnv("DICEROBOT_DEBUG")
	return cfg, nil
}

type Settings struct {
	Security SecuritySettings `json:"security"`
	App      AppSettings      `json:"app"`
	Gateway  GatewaySettings  `json:"gateway"`
	Dirs     DirsSettings     `json:"dirs"`
}

type SecuritySettings struct {
	Webhook WebhookSettings `json:"webhook"`
	Admin   AdminSettings   `json:"admin"`
	JWT     JWTSettings     `json:"jwt"`
}

type WebhookSettings struct {
	Secret string `json:"secret"`
}

type AdminSettings struct {
	PasswordHash string `json:"password_hash"`
}

type JWTSettings struct {
	Secret    string `json:"secret"`
	Algorithm string `json:"algorithm"`
}

type AppSettings struct {
	StartGatewayAtStartup bool `json:"start_gateway_at_startup"`
}

type GatewaySettings struct {
	APIBaseURL  string `json:"api_base_url"`
	WSURL       string `json:"ws_url"`
	AccessToken string `json:"access_token"`
}

type DirsSettings struct {
	Base string `json:"base"`
	Logs string `json:"logs"`
	Temp string `json:"temp"`
	Data string `json:"data"`
}

// Setting groups as persisted in the settings table.
const (
	SettingsGroupSecurity = "security"
	SettingsGroupApp      = "app"
	SettingsGroupGateway  = "gateway"
	SettingsGroupDirs     = "dirs"
)

func DefaultSettings() Settings {
	base, err := os.Getwd()
	if err != nil {
		base = "."
	}

	return Settings{
		Security: SecuritySettings{
			Webhook: WebhookSettings{
				Secret: "",
			},
			Admin: AdminSettings{
				PasswordHash: "",
			},
			JWT: JWTSettings{
				Secret:    "",
				Algorithm: "HS256",
			},
		},
		App: AppSettings{
			StartGatewayAtStartup: false,
		},
		Gateway: GatewaySettings{
			APIBaseURL:  "http://127.0.0.1:3000",
			WSURL:       "",
			AccessToken: "",
		},
		Dirs: DirsSettings{
			Base: base,
			Logs: filepath.Join(base, "logs"),
			Temp: filepath.Join(base, "temp"),
			Data: filepath.Join(base, "data"),
		},
	}
}
