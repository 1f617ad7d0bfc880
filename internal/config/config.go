package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	DefaultMessageWindow = 24
)

// ServerConfig contains connection parameters for the chat server.
type ServerConfig struct {
	Host   string `json:"host"`
	UseTLS bool   `json:"use_tls"`
	APIKey string `json:"api_key"`
}

// AccountConfig holds login credentials and client identity.
type AccountConfig struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Locale   string `json:"locale"`
}

// ChatConfig defines per-conversation behavior toggles.
type ChatConfig struct {
	SendReadReceipts        bool `json:"send_read_receipts"`
	SendTypingNotifications bool `json:"send_typing_notifications"`
	MessageWindow           int  `json:"message_window"`
	// ReconnectOnNotConnected forces an immediate reconnect attempt when a
	// subscribe fails with a not-connected error instead of waiting for the
	// connection's own retry on the next login.
	ReconnectOnNotConnected bool `json:"reconnect_on_not_connected"`
}

// LoggingConfig defines runtime logging behavior.
type LoggingConfig struct {
	Level     string `json:"level"`
	LogToFile bool   `json:"log_to_file"`
}

// NotificationConfig stores desktop notification preferences.
type NotificationConfig struct {
	IncomingMessage   bool `json:"incoming_message"`
	NotifyWhenFocused bool `json:"notify_when_focused"`
}

// AppConfig is the root persisted application configuration.
type AppConfig struct {
	Server        ServerConfig       `json:"server"`
	Account       AccountConfig      `json:"account"`
	Chat          ChatConfig         `json:"chat"`
	Logging       LoggingConfig      `json:"logging"`
	Notifications NotificationConfig `json:"notifications"`
}

func Default() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Host:   "",
			UseTLS: true,
		},
		Account: AccountConfig{
			Locale: "en",
		},
		Chat: ChatConfig{
			SendReadReceipts:        true,
			SendTypingNotifications: true,
			MessageWindow:           DefaultMessageWindow,
		},
		Logging: LoggingConfig{
			Level:     "info",
			LogToFile: false,
		},
		Notifications: NotificationConfig{
			IncomingMessage:   true,
			NotifyWhenFocused: false,
		},
	}
}

func Load(path string) (AppConfig, error) {
	cfg := Default()
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path is resolved by app runtime and points to user config dir.
	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config json: %w", err)
	}

	cfg.FillMissingDefaults()

	return cfg, nil
}

func (c *AppConfig) FillMissingDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Chat.MessageWindow <= 0 {
		c.Chat.MessageWindow = DefaultMessageWindow
	}
	if strings.TrimSpace(c.Account.Locale) == "" {
		c.Account.Locale = "en"
	}
}

func (c AppConfig) Validate() error {
	if strings.TrimSpace(c.Server.Host) == "" {
		return errors.New("server host is required")
	}

	return nil
}

func Save(path string, cfg AppConfig) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config json: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write config tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}

	return nil
}
