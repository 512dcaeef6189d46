package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := &Config{}

	if cfg.GetDBURL() != "sqlite://occupancy.db" {
		t.Errorf("GetDBURL() = %q", cfg.GetDBURL())
	}
	if cfg.GetFrameWidth() != 640 || cfg.GetFrameHeight() != 480 {
		t.Errorf("frame = %dx%d, want 640x480", cfg.GetFrameWidth(), cfg.GetFrameHeight())
	}
	if cfg.GetProcessEveryNFrames() != 3 {
		t.Errorf("GetProcessEveryNFrames() = %d, want 3", cfg.GetProcessEveryNFrames())
	}
	if cfg.GetLinePosition() != 250 {
		t.Errorf("GetLinePosition() = %g, want 250", cfg.GetLinePosition())
	}
	if cfg.GetOvercrowdThreshold() != 3 {
		t.Errorf("GetOvercrowdThreshold() = %d, want 3", cfg.GetOvercrowdThreshold())
	}
	if cfg.GetConfidenceThreshold() != 0.4 {
		t.Errorf("GetConfidenceThreshold() = %g, want 0.4", cfg.GetConfidenceThreshold())
	}
	if cfg.GetBroadcastInterval() != time.Second {
		t.Errorf("GetBroadcastInterval() = %s, want 1s", cfg.GetBroadcastInterval())
	}
	if cfg.GetTrackHistoryTTL() != 30*time.Second {
		t.Errorf("GetTrackHistoryTTL() = %s, want 30s", cfg.GetTrackHistoryTTL())
	}
	if cfg.GetFrameRetryFloor() != 10*time.Millisecond || cfg.GetFrameRetryCeil() != 250*time.Millisecond {
		t.Errorf("retry = %s..%s", cfg.GetFrameRetryFloor(), cfg.GetFrameRetryCeil())
	}
	if cfg.GetPersistQueueSize() != 256 {
		t.Errorf("GetPersistQueueSize() = %d, want 256", cfg.GetPersistQueueSize())
	}
	if cfg.GetListen() != ":8080" {
		t.Errorf("GetListen() = %q", cfg.GetListen())
	}
	if cfg.GetActivityAlerts() || cfg.GetOvercrowdCheckEachFrame() {
		t.Error("boolean options should default to false")
	}
	if cfg.GetMQTTBroker() != "" || cfg.GetMQTTTopicPrefix() != "occupancy" {
		t.Errorf("mqtt = %q %q", cfg.GetMQTTBroker(), cfg.GetMQTTTopicPrefix())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty config should validate: %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "occupancy.json")
	body := `{
  "db_url": "postgres://u:p@localhost/shop",
  "line_position": 300,
  "overcrowd_threshold": 5,
  "broadcast_interval": "500ms",
  "activity_alerts": true
}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GetDBURL() != "postgres://u:p@localhost/shop" {
		t.Errorf("GetDBURL() = %q", cfg.GetDBURL())
	}
	if cfg.GetLinePosition() != 300 {
		t.Errorf("GetLinePosition() = %g, want 300", cfg.GetLinePosition())
	}
	if cfg.GetOvercrowdThreshold() != 5 {
		t.Errorf("GetOvercrowdThreshold() = %d, want 5", cfg.GetOvercrowdThreshold())
	}
	if cfg.GetBroadcastInterval() != 500*time.Millisecond {
		t.Errorf("GetBroadcastInterval() = %s", cfg.GetBroadcastInterval())
	}
	if !cfg.GetActivityAlerts() {
		t.Error("activity_alerts not loaded")
	}
	// Unset keys keep their defaults.
	if cfg.GetProcessEveryNFrames() != 3 {
		t.Errorf("GetProcessEveryNFrames() = %d, want 3", cfg.GetProcessEveryNFrames())
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "occupancy.yaml")
	body := "process_every_n_frames: 1\nframe_height: 720\nline_position: 600\nmqtt_broker: localhost:1883\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GetProcessEveryNFrames() != 1 || cfg.GetFrameHeight() != 720 || cfg.GetLinePosition() != 600 {
		t.Errorf("got n=%d h=%d line=%g", cfg.GetProcessEveryNFrames(), cfg.GetFrameHeight(), cfg.GetLinePosition())
	}
	if cfg.GetMQTTBroker() != "localhost:1883" {
		t.Errorf("GetMQTTBroker() = %q", cfg.GetMQTTBroker())
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"bad extension", write("c.toml", "x = 1"), "extension"},
		{"missing file", filepath.Join(dir, "nope.json"), "stat"},
		{"malformed json", write("bad.json", "{"), "parse"},
		{"zero decimation", write("n.json", `{"process_every_n_frames": 0}`), "process_every_n_frames"},
		{"line outside frame", write("l.json", `{"line_position": 900}`), "line_position"},
		{"bad duration", write("d.yaml", "broadcast_interval: soon\n"), "broadcast_interval"},
		{"ceil below floor", write("r.json", `{"frame_retry_floor": "1s", "frame_retry_ceil": "10ms"}`), "frame_retry_ceil"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadTooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.json")
	if err := os.WriteFile(path, make([]byte, maxFileSize+1), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("Load() error = %v, want too large", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"DB_URL":                 "sqlite:///tmp/x.db",
		"LINE_POSITION":          "120.5",
		"PROCESS_EVERY_N_FRAMES": "2",
		"CONFIDENCE_THRESHOLD":   "0.6",
		"OVERCROWD_THRESHOLD":    "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := &Config{OvercrowdThreshold: ptrInt(7)}
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.GetDBURL() != "sqlite:///tmp/x.db" {
		t.Errorf("GetDBURL() = %q", cfg.GetDBURL())
	}
	if cfg.GetLinePosition() != 120.5 {
		t.Errorf("GetLinePosition() = %g", cfg.GetLinePosition())
	}
	if cfg.GetProcessEveryNFrames() != 2 {
		t.Errorf("GetProcessEveryNFrames() = %d", cfg.GetProcessEveryNFrames())
	}
	if cfg.GetConfidenceThreshold() != 0.6 {
		t.Errorf("GetConfidenceThreshold() = %g", cfg.GetConfidenceThreshold())
	}
	// Empty values do not override.
	if cfg.GetOvercrowdThreshold() != 7 {
		t.Errorf("GetOvercrowdThreshold() = %d, want 7", cfg.GetOvercrowdThreshold())
	}
}

func TestApplyEnvRejectsGarbage(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == "FRAME_WIDTH" {
			return "wide", true
		}
		return "", false
	}
	cfg := &Config{}
	err := cfg.ApplyEnv(lookup)
	if err == nil || !strings.Contains(err.Error(), "FRAME_WIDTH") {
		t.Errorf("ApplyEnv() error = %v, want FRAME_WIDTH parse error", err)
	}

	bad := &Config{OvercrowdThreshold: ptrInt(0)}
	if err := bad.ApplyEnv(func(string) (string, bool) { return "", false }); err == nil {
		t.Error("ApplyEnv should validate the merged config")
	}
}

func TestValidateConfidenceRange(t *testing.T) {
	cfg := &Config{ConfidenceThreshold: ptrFloat64(1.5)}
	if err := cfg.Validate(); err == nil {
		t.Error("confidence above 1 should fail")
	}
	cfg = &Config{ActivityAlerts: ptrBool(true), Listen: ptrString(":9000")}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestTimezone(t *testing.T) {
	cfg := &Config{}
	if cfg.GetLocation() != time.UTC {
		t.Errorf("default location = %s, want UTC", cfg.GetLocation())
	}

	cfg.Timezone = ptrString("Europe/Berlin")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.GetLocation().String() != "Europe/Berlin" {
		t.Errorf("GetLocation() = %s", cfg.GetLocation())
	}

	cfg.Timezone = ptrString("Mars/Olympus_Mons")
	if err := cfg.Validate(); err == nil {
		t.Error("unknown timezone should fail validation")
	}
	if cfg.GetLocation() != time.UTC {
		t.Error("unknown timezone should fall back to UTC")
	}
}

func TestRedacted(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"url userinfo", "postgres://shop:s3cret@db:5432/retail", "postgres://shop:xxxxx@db:5432/retail"},
		{"user only", "postgres://shop@db/retail", "postgres://shop@db/retail"},
		{"password param", "postgres://db/retail?sslmode=disable&password=s3cret", "postgres://db/retail?sslmode=disable&password=xxxxx"},
		{"sqlite", "sqlite://occupancy.db", "sqlite://occupancy.db"},
		{"no scheme", "mqtt:hunter2@broker:1883", "mqtt:xxxxx@broker:1883"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{DBURL: ptrString(tt.in)}
			got := cfg.Redacted()
			if *got.DBURL != tt.want {
				t.Errorf("Redacted().DBURL = %q, want %q", *got.DBURL, tt.want)
			}
			if *cfg.DBURL != tt.in {
				t.Errorf("original modified: %q", *cfg.DBURL)
			}
		})
	}

	if (&Config{}).Redacted().DBURL != nil {
		t.Error("unset db_url should stay unset")
	}
}
