package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestParseJSON(t *testing.T) {
	p := writeConfig(t, "config.json", `{
  "service": {"base_url": "http://localhost:9999", "timeline_rate_per_min": 60},
  "scheduler": {"margin": "3s", "grace": "5s", "horizon": "48h"},
  "refresh": {"enabled": true, "every": "10m"},
  "notify": {"enabled": false, "token": "", "chat_id": 0},
  "logging": {"level": "debug", "console": true, "file": {"enabled": false, "path": ""}},
  "storage": {"path": "./test.db", "busy_timeout": "2s"}
}`)
	cfg, err := NewManager(p).Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Service.BaseURL != "http://localhost:9999" {
		t.Fatalf("base_url = %q", cfg.Service.BaseURL)
	}
	if cfg.Scheduler.Margin != "3s" || cfg.Scheduler.StopAfterClose {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	if !cfg.Refresh.Enabled || cfg.Refresh.Every != "10m" {
		t.Fatalf("refresh = %+v", cfg.Refresh)
	}
	if cfg.Notify == nil || cfg.Notify.Enabled {
		t.Fatalf("notify = %+v", cfg.Notify)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
}

func TestParseYAML(t *testing.T) {
	p := writeConfig(t, "config.yaml", `
service:
  base_url: http://localhost:9999
scheduler:
  margin: 3s
  stop_after_close: true
logging:
  level: info
  console: true
  file:
    enabled: false
    path: ""
storage:
  path: ./test.db
`)
	cfg, err := NewManager(p).Parse()
	if err != nil {
		t.Fatalf("parse yaml: %v", err)
	}
	if cfg.Service.BaseURL != "http://localhost:9999" {
		t.Fatalf("base_url = %q", cfg.Service.BaseURL)
	}
	if !cfg.Scheduler.StopAfterClose {
		t.Fatal("stop_after_close not decoded")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	p := writeConfig(t, "config.json", `{"service": {"base_urrl": "typo"}}`)
	if _, err := NewManager(p).Parse(); err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	p := writeConfig(t, "config.json", `{"service": {}} {"extra": 1}`)
	if _, err := NewManager(p).Parse(); err == nil {
		t.Fatal("trailing data accepted")
	}
}

func TestParseDurationField(t *testing.T) {
	if d, err := ParseDurationField("x", "1m30s"); err != nil || d != 90*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	if d, err := ParseDurationField("x", "  "); err != nil || d != 0 {
		t.Fatalf("blank: got %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-5s"); err == nil {
		t.Fatal("negative duration accepted")
	}
	if _, err := ParseDurationField("scheduler.margin", "3 parsecs"); err == nil {
		t.Fatal("garbage duration accepted")
	} else if !strings.Contains(err.Error(), "scheduler.margin") {
		t.Fatalf("error %q does not name the field", err)
	}
	if d, err := ParseDurationOrDefault("x", "", 3*time.Second); err != nil || d != 3*time.Second {
		t.Fatalf("default: got %v, %v", d, err)
	}
}

func TestCheckDurations(t *testing.T) {
	cfg := &Config{}
	if err := CheckDurations(cfg); err != nil {
		t.Fatalf("blank fields should pass: %v", err)
	}
	cfg.Scheduler.Margin = "3s"
	cfg.Refresh.Every = "10m"
	if err := CheckDurations(cfg); err != nil {
		t.Fatalf("valid fields rejected: %v", err)
	}
	cfg.Storage.BusyTimeout = "fortnight"
	err := CheckDurations(cfg)
	if err == nil {
		t.Fatal("bad busy_timeout accepted")
	}
	if !strings.Contains(err.Error(), "storage.busy_timeout") {
		t.Fatalf("error %q does not name the field", err)
	}
}

func TestSummarizeChange(t *testing.T) {
	oldCfg := &Config{
		Scheduler: SchedulerConfig{Margin: "3s"},
		Logging:   LoggingConfig{Level: "info"},
	}
	newCfg := &Config{
		Scheduler: SchedulerConfig{Margin: "5s"},
		Logging:   LoggingConfig{Level: "info"},
		Notify:    &NotifyConfig{Enabled: true, Token: "t", ChatID: 1},
	}

	sections, _ := SummarizeChange(oldCfg, newCfg)
	want := map[string]bool{"scheduler": true, "notify": true}
	if len(sections) != len(want) {
		t.Fatalf("sections = %v", sections)
	}
	for _, s := range sections {
		if !want[s] {
			t.Fatalf("unexpected section %q in %v", s, sections)
		}
	}

	sections, _ = SummarizeChange(newCfg, newCfg)
	if len(sections) != 0 {
		t.Fatalf("no-op diff reported %v", sections)
	}
}
