package config

import (
	"regexp"
	"strings"
	"time"
)

func getDuration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetDBURL returns the database DSN or the default SQLite file.
func (c *Config) GetDBURL() string {
	if c.DBURL == nil {
		return "sqlite://occupancy.db"
	}
	return *c.DBURL
}

// GetPersistQueueSize returns the writer backlog size.
func (c *Config) GetPersistQueueSize() int {
	if c.PersistQueueSize == nil {
		return 256
	}
	return *c.PersistQueueSize
}

// GetCameraURL returns the snapshot URL, or "" when none is configured.
func (c *Config) GetCameraURL() string {
	if c.CameraURL == nil {
		return ""
	}
	return *c.CameraURL
}

// GetTrackerURL returns the detect-and-track service URL, or "".
func (c *Config) GetTrackerURL() string {
	if c.TrackerURL == nil {
		return ""
	}
	return *c.TrackerURL
}

// GetSnapshotInterval returns the camera poll interval.
func (c *Config) GetSnapshotInterval() time.Duration {
	return getDuration(c.SnapshotInterval, 100*time.Millisecond)
}

// GetFrameWidth returns the configured frame width.
func (c *Config) GetFrameWidth() int {
	if c.FrameWidth == nil {
		return 640
	}
	return *c.FrameWidth
}

// GetFrameHeight returns the configured frame height.
func (c *Config) GetFrameHeight() int {
	if c.FrameHeight == nil {
		return 480
	}
	return *c.FrameHeight
}

// GetConfidenceThreshold returns the minimum track confidence.
func (c *Config) GetConfidenceThreshold() float64 {
	if c.ConfidenceThreshold == nil {
		return 0.4
	}
	return *c.ConfidenceThreshold
}

// GetProcessEveryNFrames returns the decimation factor.
func (c *Config) GetProcessEveryNFrames() int {
	if c.ProcessEveryNFrames == nil {
		return 3
	}
	return *c.ProcessEveryNFrames
}

// GetFrameRetryFloor returns the first back-off when no frame is ready.
func (c *Config) GetFrameRetryFloor() time.Duration {
	return getDuration(c.FrameRetryFloor, 10*time.Millisecond)
}

// GetFrameRetryCeil returns the longest back-off when no frame is ready.
func (c *Config) GetFrameRetryCeil() time.Duration {
	return getDuration(c.FrameRetryCeil, 250*time.Millisecond)
}

// GetLinePosition returns the counting line row.
func (c *Config) GetLinePosition() float64 {
	if c.LinePosition == nil {
		return 250
	}
	return *c.LinePosition
}

// GetOvercrowdThreshold returns the occupancy alert threshold.
func (c *Config) GetOvercrowdThreshold() int {
	if c.OvercrowdThreshold == nil {
		return 3
	}
	return *c.OvercrowdThreshold
}

// GetOvercrowdCheckEachFrame reports whether the overcrowding check also
// runs once per processed frame.
func (c *Config) GetOvercrowdCheckEachFrame() bool {
	if c.OvercrowdCheckEachFrame == nil {
		return false
	}
	return *c.OvercrowdCheckEachFrame
}

// GetActivityAlerts reports whether crossings log info alerts.
func (c *Config) GetActivityAlerts() bool {
	if c.ActivityAlerts == nil {
		return false
	}
	return *c.ActivityAlerts
}

// GetTrackHistoryTTL returns how long an unseen track's position is kept.
func (c *Config) GetTrackHistoryTTL() time.Duration {
	return getDuration(c.TrackHistoryTTL, 30*time.Second)
}

// GetListen returns the HTTP listen address.
func (c *Config) GetListen() string {
	if c.Listen == nil {
		return ":8080"
	}
	return *c.Listen
}

// GetBroadcastInterval returns the push period.
func (c *Config) GetBroadcastInterval() time.Duration {
	return getDuration(c.BroadcastInterval, time.Second)
}

// GetMQTTBroker returns the broker address, or "" when MQTT is off.
func (c *Config) GetMQTTBroker() string {
	if c.MQTTBroker == nil {
		return ""
	}
	return *c.MQTTBroker
}

// GetMQTTTopicPrefix returns the topic root for published messages.
func (c *Config) GetMQTTTopicPrefix() string {
	if c.MQTTTopicPrefix == nil {
		return "occupancy"
	}
	return *c.MQTTTopicPrefix
}

// GetMQTTClientID returns the MQTT client ID.
func (c *Config) GetMQTTClientID() string {
	if c.MQTTClientID == nil {
		return "occupancy-report"
	}
	return *c.MQTTClientID
}

// GetLocation returns the timezone hourly trends are bucketed in. An
// unloadable name falls back to UTC; Validate reports it.
func (c *Config) GetLocation() *time.Location {
	if c.Timezone == nil {
		return time.UTC
	}
	loc, err := time.LoadLocation(*c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

var passwordParam = regexp.MustCompile(`(?i)(password=)[^\s&]+`)

// redactURL masks the password in user:pass@ userinfo, with or without
// a scheme, and in a password= parameter.
func redactURL(s string) string {
	s = passwordParam.ReplaceAllString(s, "${1}xxxxx")
	at := strings.LastIndex(s, "@")
	if at < 0 {
		return s
	}
	start := 0
	if i := strings.Index(s, "://"); i >= 0 && i < at {
		start = i + 3
	}
	userinfo := s[start:at]
	if i := strings.Index(userinfo, ":"); i >= 0 {
		return s[:start] + userinfo[:i] + ":xxxxx" + s[at:]
	}
	return s
}

// Redacted returns a copy safe to serve: credentials in db_url and
// mqtt_broker are masked.
func (c *Config) Redacted() *Config {
	cp := *c
	if c.DBURL != nil {
		cp.DBURL = ptrString(redactURL(*c.DBURL))
	}
	if c.MQTTBroker != nil {
		cp.MQTTBroker = ptrString(redactURL(*c.MQTTBroker))
	}
	return &cp
}
