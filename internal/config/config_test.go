package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Chat.MessageWindow != DefaultMessageWindow {
		t.Fatalf("unexpected message window: %d", cfg.Chat.MessageWindow)
	}
	if !cfg.Chat.SendReadReceipts || !cfg.Chat.SendTypingNotifications {
		t.Fatalf("expected chat toggles on by default, got %+v", cfg.Chat)
	}
	if !cfg.Server.UseTLS {
		t.Fatal("expected TLS on by default")
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := Default()
	cfg.Server.Host = "chat.example.com"
	cfg.Account.Login = "alice"
	cfg.Chat.MessageWindow = 50

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.Server.Host != "chat.example.com" || loaded.Account.Login != "alice" {
		t.Fatalf("round trip lost fields: %+v", loaded)
	}
	if loaded.Chat.MessageWindow != 50 {
		t.Fatalf("unexpected window: %d", loaded.Chat.MessageWindow)
	}
}

func TestLoadFillsPartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := []byte(`{"server":{"host":"chat.example.com"},"chat":{"message_window":0}}`)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Chat.MessageWindow != DefaultMessageWindow {
		t.Fatalf("expected backfilled window, got %d", cfg.Chat.MessageWindow)
	}
	if cfg.Account.Locale != "en" {
		t.Fatalf("expected backfilled locale, got %q", cfg.Account.Locale)
	}
}

func TestValidateRequiresHost(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation failure without a host")
	}
	cfg.Server.Host = "chat.example.com"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}
