package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, body string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return NewManager(path)
}

func TestParseYAML(t *testing.T) {
	m := writeConfig(t, "config.yaml", `
telegram:
  token: "123:abc"
  owner_user_ids: [1, 2]
  poll_timeout: "10s"
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: ./data/fedbot.db
plugins:
  fban:
    enabled: true
    config:
      log_chat: -100900
`)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || len(cfg.Telegram.OwnerUserIDs) != 2 {
		t.Fatalf("telegram: %+v", cfg.Telegram)
	}
	if !cfg.Plugins["fban"].Enabled || len(cfg.Plugins["fban"].Config) == 0 {
		t.Fatalf("plugins: %+v", cfg.Plugins)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get must return the committed config")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	m := writeConfig(t, "config.yaml", `
telegram:
  token: "123:abc"
  owner_userids: [1]
`)
	if _, err := m.Parse(); err == nil {
		t.Fatal("misspelled key must be rejected")
	}
}

func TestParseRejectsUnknownPluginKeys(t *testing.T) {
	m := writeConfig(t, "config.json", `{
		"telegram": {"token": "t"},
		"plugins": {"fban": {"enabld": true}}
	}`)
	if _, err := m.Parse(); err == nil {
		t.Fatal("misspelled plugin key must be rejected")
	}
}
