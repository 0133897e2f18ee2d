package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/andremotz/katzenschreck/internal/model"
	"github.com/joho/godotenv"
)

// DefaultConfigFile is read when no --config flag is given.
const DefaultConfigFile = "config.txt"

type Config struct {
	VideoSourceURL string

	BrokerURL            string
	BrokerPort           int
	BrokerTopic          string
	BrokerUsername       string
	BrokerPassword       string
	BrokerConnectTimeout time.Duration
	PublishTimeout       time.Duration
	HeartbeatInterval    time.Duration

	ConfidenceThreshold float64
	DiskUsageThreshold  float64
	IgnoreZone          *model.IgnoreZone // nil disables zone filtering
	DetectClasses       []string          // empty accepts every class

	OutputDirectory string
	SaveAllFrames   bool
	DiskUsagePath   string // volume whose usage drives eviction

	CameraName       string
	DatabasePath     string // empty disables the relational store
	SnapshotInterval time.Duration
	SnapshotKeep     int // 0 keeps every snapshot

	ModelPath      string
	ModelInputSize int
	NMSThreshold   float64

	DrainGrabThreshold time.Duration
	DrainMaxFrames     int

	HTTPPort     int // 0 disables the status server
	HTTPPassword string

	LogDirectory string
	LogLevel     string
}

// ConfigurationError lists every problem found while loading the configuration.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", strings.Join(e.Problems, "; "))
}

func (e *ConfigurationError) Unwrap() error {
	return model.ErrConfiguration
}

// legacy keys used by earlier deployments of the detector
var aliases = map[string]string{
	"rtsp_stream_url":  "video_source_url",
	"mqtt_broker_url":  "broker_url",
	"mqtt_broker_port": "broker_port",
	"mqtt_topic":       "broker_topic",
	"mqtt_username":    "broker_username",
	"mqtt_password":    "broker_password",
	"usage_threshold":  "disk_usage_threshold",
}

var requiredKeys = []string{
	"video_source_url",
	"broker_url",
	"broker_topic",
	"broker_username",
	"broker_password",
}

// Load reads the key=value file at path and applies environment overrides.
// An empty path skips the file and uses the environment only.
func Load(path string) (*Config, error) {
	values := map[string]string{}
	if path != "" {
		fileValues, err := godotenv.Read(path)
		if err != nil {
			return nil, &ConfigurationError{Problems: []string{fmt.Sprintf("cannot read %s: %v", path, err)}}
		}
		values = fileValues
	}
	return FromMap(values)
}

// FromMap builds a Config from raw key/value pairs plus environment overrides.
func FromMap(raw map[string]string) (*Config, error) {
	r := &reader{values: normalize(raw)}

	cfg := &Config{
		VideoSourceURL: r.getString("video_source_url", ""),

		BrokerURL:            r.getString("broker_url", ""),
		BrokerPort:           r.getInt("broker_port", 1883),
		BrokerTopic:          strings.TrimSuffix(r.getString("broker_topic", ""), "/"),
		BrokerUsername:       r.getString("broker_username", ""),
		BrokerPassword:       r.getString("broker_password", ""),
		BrokerConnectTimeout: r.getDuration("broker_connect_timeout", 10*time.Second),
		PublishTimeout:       r.getDuration("publish_timeout", 5*time.Second),
		HeartbeatInterval:    r.getDuration("heartbeat_interval", 30*time.Second),

		ConfidenceThreshold: r.getFloat("confidence_threshold", 0.5),
		DiskUsageThreshold:  r.getFloat("disk_usage_threshold", 0.8),
		IgnoreZone:          r.getZone("ignore_zone"),
		DetectClasses:       r.getList("detect_classes", []string{model.ClassPerson, model.ClassCat}),

		OutputDirectory: r.getString("output_dir", filepath.Join(".", "results")),
		SaveAllFrames:   r.getBool("save_all_frames", false),
		DiskUsagePath:   r.getString("disk_usage_path", "/"),

		CameraName:       r.getString("camera_name", "cam_garten"),
		DatabasePath:     r.getString("db_path", ""),
		SnapshotInterval: r.getDuration("snapshot_interval", 60*time.Second),
		SnapshotKeep:     r.getInt("snapshot_keep", 0),

		ModelPath:      r.getString("model_path", "yolo11n.onnx"),
		ModelInputSize: r.getInt("model_input_size", 640),
		NMSThreshold:   r.getFloat("nms_threshold", 0.45),

		DrainGrabThreshold: r.getDuration("drain_grab_threshold", 15*time.Millisecond),
		DrainMaxFrames:     r.getInt("drain_max_frames", 50),

		HTTPPort:     r.getInt("http_port", 0),
		HTTPPassword: r.getString("http_password", ""),

		LogDirectory: r.getString("log_dir", filepath.Join(".", "logs")),
		LogLevel:     strings.ToLower(r.getString("log_level", "info")),
	}

	for _, key := range requiredKeys {
		if r.getString(key, "") == "" {
			r.problem("%s not found in configuration", key)
		}
	}
	cfg.validate(r)

	if len(r.problems) > 0 {
		return nil, &ConfigurationError{Problems: r.problems}
	}
	return cfg, nil
}

func (c *Config) validate(r *reader) {
	if !(c.ConfidenceThreshold >= 0 && c.ConfidenceThreshold < 1) {
		r.problem("confidence_threshold must be in [0,1), got %v", c.ConfidenceThreshold)
	}
	if !(c.DiskUsageThreshold > 0 && c.DiskUsageThreshold <= 1) {
		r.problem("disk_usage_threshold must be in (0,1], got %v", c.DiskUsageThreshold)
	}
	if c.BrokerPort <= 0 || c.BrokerPort > 65535 {
		r.problem("broker_port out of range: %d", c.BrokerPort)
	}
	if c.HeartbeatInterval <= 0 {
		r.problem("heartbeat_interval must be positive")
	}
	if c.BrokerConnectTimeout <= 0 || c.PublishTimeout <= 0 {
		r.problem("broker timeouts must be positive")
	}
	if c.DrainMaxFrames < 0 {
		r.problem("drain_max_frames must not be negative")
	}
	if c.ModelInputSize <= 0 {
		r.problem("model_input_size must be positive")
	}
	if c.SnapshotInterval < 0 {
		r.problem("snapshot_interval must not be negative")
	}
	if c.SnapshotKeep < 0 {
		r.problem("snapshot_keep must not be negative")
	}
	switch c.LogLevel {
	case "debug", "info", "warning", "error":
	default:
		r.problem("log_level must be debug, info, warning or error, got %q", c.LogLevel)
	}
}

// BrokerAddress returns the broker URL in the scheme://host:port form paho expects.
func (c *Config) BrokerAddress() string {
	address := c.BrokerURL
	if !strings.Contains(address, "://") {
		address = "tcp://" + address
	}
	if strings.Count(address, ":") < 2 {
		address = fmt.Sprintf("%s:%d", address, c.BrokerPort)
	}
	return address
}

// IsConfigurationError reports whether err came from configuration loading.
func IsConfigurationError(err error) bool {
	return errors.Is(err, model.ErrConfiguration)
}

func normalize(raw map[string]string) map[string]string {
	values := make(map[string]string, len(raw))
	for key, value := range raw {
		key = strings.ToLower(strings.TrimSpace(key))
		if canonical, ok := aliases[key]; ok {
			if _, set := raw[canonical]; set {
				continue
			}
			key = canonical
		}
		values[key] = strings.TrimSpace(value)
	}
	return values
}

type reader struct {
	values   map[string]string
	problems []string
}

func (r *reader) problem(format string, args ...interface{}) {
	r.problems = append(r.problems, fmt.Sprintf(format, args...))
}

// lookup prefers the upper-cased environment variable over the file value.
func (r *reader) lookup(key string) (string, bool) {
	if value := os.Getenv(strings.ToUpper(key)); value != "" {
		return value, true
	}
	value, ok := r.values[key]
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

func (r *reader) getString(key, defaultValue string) string {
	if value, ok := r.lookup(key); ok {
		return value
	}
	return defaultValue
}

func (r *reader) getInt(key string, defaultValue int) int {
	value, ok := r.lookup(key)
	if !ok {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		r.problem("%s: invalid integer %q", key, value)
		return defaultValue
	}
	return intValue
}

func (r *reader) getFloat(key string, defaultValue float64) float64 {
	value, ok := r.lookup(key)
	if !ok {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		r.problem("%s: invalid number %q", key, value)
		return defaultValue
	}
	return floatValue
}

func (r *reader) getBool(key string, defaultValue bool) bool {
	value, ok := r.lookup(key)
	if !ok {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(strings.ToLower(value))
	if err != nil {
		r.problem("%s: invalid boolean %q", key, value)
		return defaultValue
	}
	return boolValue
}

// getDuration accepts Go durations ("30s") and bare numbers of seconds ("30").
func (r *reader) getDuration(key string, defaultValue time.Duration) time.Duration {
	value, ok := r.lookup(key)
	if !ok {
		return defaultValue
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(seconds * float64(time.Second))
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		r.problem("%s: invalid duration %q", key, value)
		return defaultValue
	}
	return d
}

func (r *reader) getList(key string, defaultValue []string) []string {
	value, ok := r.lookup(key)
	if !ok {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func (r *reader) getZone(key string) *model.IgnoreZone {
	value, ok := r.lookup(key)
	if !ok {
		return nil
	}
	parts := strings.Split(value, ",")
	if len(parts) != 4 {
		r.problem("%s: expected four comma-separated values, got %q", key, value)
		return nil
	}
	var coords [4]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			r.problem("%s: invalid number %q", key, part)
			return nil
		}
		coords[i] = f
	}
	zone := &model.IgnoreZone{XMin: coords[0], YMin: coords[1], XMax: coords[2], YMax: coords[3]}
	if err := zone.Validate(); err != nil {
		r.problem("%s: %v", key, err)
		return nil
	}
	return zone
}
