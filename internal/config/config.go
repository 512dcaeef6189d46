// Package config loads service settings from a JSON or YAML file and
// environment overrides. Every field is optional; Get* accessors supply
// the defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
	_ "time/tzdata" // timezone names resolve on hosts without zoneinfo

	"gopkg.in/yaml.v3"
)

// maxFileSize bounds the config file we are willing to parse.
const maxFileSize = 1 * 1024 * 1024

// Config is the service configuration. The same keys are accepted in
// JSON and YAML.
type Config struct {
	// Persistence
	DBURL            *string `json:"db_url,omitempty" yaml:"db_url,omitempty"`
	PersistQueueSize *int    `json:"persist_queue_size,omitempty" yaml:"persist_queue_size,omitempty"`

	// Frame source and perception
	CameraURL           *string  `json:"camera_url,omitempty" yaml:"camera_url,omitempty"`
	TrackerURL          *string  `json:"tracker_url,omitempty" yaml:"tracker_url,omitempty"`
	SnapshotInterval    *string  `json:"snapshot_interval,omitempty" yaml:"snapshot_interval,omitempty"` // duration string like "100ms"
	FrameWidth          *int     `json:"frame_width,omitempty" yaml:"frame_width,omitempty"`
	FrameHeight         *int     `json:"frame_height,omitempty" yaml:"frame_height,omitempty"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty" yaml:"confidence_threshold,omitempty"`

	// Scheduler
	ProcessEveryNFrames *int    `json:"process_every_n_frames,omitempty" yaml:"process_every_n_frames,omitempty"`
	FrameRetryFloor     *string `json:"frame_retry_floor,omitempty" yaml:"frame_retry_floor,omitempty"`
	FrameRetryCeil      *string `json:"frame_retry_ceil,omitempty" yaml:"frame_retry_ceil,omitempty"`

	// Analytics
	LinePosition            *float64 `json:"line_position,omitempty" yaml:"line_position,omitempty"`
	OvercrowdThreshold      *int     `json:"overcrowd_threshold,omitempty" yaml:"overcrowd_threshold,omitempty"`
	OvercrowdCheckEachFrame *bool    `json:"overcrowd_check_each_frame,omitempty" yaml:"overcrowd_check_each_frame,omitempty"`
	ActivityAlerts          *bool    `json:"activity_alerts,omitempty" yaml:"activity_alerts,omitempty"`
	TrackHistoryTTL         *string  `json:"track_history_ttl,omitempty" yaml:"track_history_ttl,omitempty"`

	// Reporting
	Timezone *string `json:"timezone,omitempty" yaml:"timezone,omitempty"` // IANA name used for hourly trends

	// Transport
	Listen            *string `json:"listen,omitempty" yaml:"listen,omitempty"`
	BroadcastInterval *string `json:"broadcast_interval,omitempty" yaml:"broadcast_interval,omitempty"`
	MQTTBroker        *string `json:"mqtt_broker,omitempty" yaml:"mqtt_broker,omitempty"`
	MQTTTopicPrefix   *string `json:"mqtt_topic_prefix,omitempty" yaml:"mqtt_topic_prefix,omitempty"`
	MQTTClientID      *string `json:"mqtt_client_id,omitempty" yaml:"mqtt_client_id,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// Load reads a .json, .yaml or .yml file and validates it.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filepath.Base(cleanPath), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables. lookup is
// usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst **string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = ptrString(v)
		}
	}
	num := func(key string, dst **int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = ptrInt(n)
		return nil
	}
	float := func(key string, dst **float64) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = ptrFloat64(f)
		return nil
	}

	str("DB_URL", &c.DBURL)
	str("CAMERA_URL", &c.CameraURL)
	str("TRACKER_URL", &c.TrackerURL)
	str("MQTT_BROKER", &c.MQTTBroker)
	str("OCCUPANCY_TIMEZONE", &c.Timezone)
	for _, err := range []error{
		num("FRAME_WIDTH", &c.FrameWidth),
		num("FRAME_HEIGHT", &c.FrameHeight),
		num("PROCESS_EVERY_N_FRAMES", &c.ProcessEveryNFrames),
		num("OVERCROWD_THRESHOLD", &c.OvercrowdThreshold),
		float("LINE_POSITION", &c.LinePosition),
		float("CONFIDENCE_THRESHOLD", &c.ConfidenceThreshold),
	} {
		if err != nil {
			return fmt.Errorf("environment override %w", err)
		}
	}
	return c.Validate()
}

// Validate checks the values that are set.
func (c *Config) Validate() error {
	if c.ProcessEveryNFrames != nil && *c.ProcessEveryNFrames < 1 {
		return fmt.Errorf("process_every_n_frames must be at least 1, got %d", *c.ProcessEveryNFrames)
	}
	if c.OvercrowdThreshold != nil && *c.OvercrowdThreshold < 1 {
		return fmt.Errorf("overcrowd_threshold must be at least 1, got %d", *c.OvercrowdThreshold)
	}
	if c.FrameWidth != nil && *c.FrameWidth <= 0 {
		return fmt.Errorf("frame_width must be positive, got %d", *c.FrameWidth)
	}
	if c.FrameHeight != nil && *c.FrameHeight <= 0 {
		return fmt.Errorf("frame_height must be positive, got %d", *c.FrameHeight)
	}
	if line := c.GetLinePosition(); line < 0 || line > float64(c.GetFrameHeight()) {
		return fmt.Errorf("line_position must be between 0 and frame_height %d, got %g", c.GetFrameHeight(), line)
	}
	if c.ConfidenceThreshold != nil && (*c.ConfidenceThreshold < 0 || *c.ConfidenceThreshold > 1) {
		return fmt.Errorf("confidence_threshold must be between 0 and 1, got %g", *c.ConfidenceThreshold)
	}
	if c.PersistQueueSize != nil && *c.PersistQueueSize < 1 {
		return fmt.Errorf("persist_queue_size must be at least 1, got %d", *c.PersistQueueSize)
	}
	for name, v := range map[string]*string{
		"broadcast_interval": c.BroadcastInterval,
		"track_history_ttl":  c.TrackHistoryTTL,
		"frame_retry_floor":  c.FrameRetryFloor,
		"frame_retry_ceil":   c.FrameRetryCeil,
		"snapshot_interval":  c.SnapshotInterval,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.Timezone != nil {
		if _, err := time.LoadLocation(*c.Timezone); err != nil || *c.Timezone == "" {
			return fmt.Errorf("invalid timezone %q", *c.Timezone)
		}
	}
	if c.GetFrameRetryCeil() < c.GetFrameRetryFloor() {
		return fmt.Errorf("frame_retry_ceil %s is below frame_retry_floor %s", c.GetFrameRetryCeil(), c.GetFrameRetryFloor())
	}
	return nil
}
