// Package config assembles the client configuration from defaults and the
// KMQ2_* environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/NeonKnightOA/KMQuake2/internal/demo"
	"github.com/NeonKnightOA/KMQuake2/internal/frame"
	"github.com/NeonKnightOA/KMQuake2/internal/protocol"
	"github.com/NeonKnightOA/KMQuake2/internal/session"
	"github.com/NeonKnightOA/KMQuake2/internal/telemetry"
	"github.com/NeonKnightOA/KMQuake2/logging"
)

type Config struct {
	Frame    frame.Config
	Features protocol.Features
	// ShowNet is the trace level: 2 logs frame headers, 3 every merge step.
	ShowNet int
	// NoDelta makes the client request full frames.
	NoDelta bool
	// Timedemo plays demos without interpolation.
	Timedemo bool

	Logging          logging.Config
	MetricsNamespace string
	DebugAddr        string

	// S3 locates demos given as s3://bucket/key.
	S3 demo.S3Config
}

func Default() Config {
	return Config{
		Frame:            frame.DefaultConfig(),
		Features:         protocol.DefaultFeatures(),
		Logging:          logging.DefaultConfig(),
		MetricsNamespace: "kmq2",
		S3:               demo.S3Config{Region: "us-east-1"},
	}
}

// Session returns the per connection part of the configuration.
func (c Config) Session() session.Config {
	return session.Config{
		Frame:    c.Frame,
		Features: c.Features,
		ShowNet:  c.ShowNet,
		NoDelta:  c.NoDelta,
	}
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// FromEnv reads the process environment on top of Default.
func FromEnv(logger telemetry.Logger) Config {
	return Load(os.LookupEnv, logger)
}

// Load applies every KMQ2_* variable found by lookup on top of Default.
// Invalid values are reported through logger and ignored.
func Load(lookup LookupFunc, logger telemetry.Logger) Config {
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}
	cfg := Default()
	env := envReader{lookup: lookup, logger: logger}

	env.int("KMQ2_SHOWNET", &cfg.ShowNet)
	env.int("KMQ2_MAX_EDICTS", &cfg.Frame.MaxEdicts)
	env.int("KMQ2_PARSE_ENTITIES", &cfg.Frame.ParseEntities)
	env.int("KMQ2_UPDATE_BACKUP", &cfg.Frame.UpdateBackup)
	env.int("KMQ2_HISTORY_MARGIN", &cfg.Frame.HistoryMargin)
	env.bool("KMQ2_NODELTA", &cfg.NoDelta)
	env.bool("KMQ2_TIMEDEMO", &cfg.Timedemo)

	if raw, ok := lookup("KMQ2_FEATURES"); ok {
		if features, err := protocol.ParseFeatures(raw); err == nil {
			cfg.Features = features
		} else {
			logger.Printf("invalid KMQ2_FEATURES=%q: %v", raw, err)
		}
	}
	if raw, ok := lookup("KMQ2_LOG_SINKS"); ok {
		cfg.Logging.EnabledSinks = splitList(raw)
	}
	if raw, ok := lookup("KMQ2_LOG_LEVEL"); ok && raw != "" {
		cfg.Logging.MinimumSeverity = logging.ParseSeverity(strings.ToLower(raw))
	}
	if raw, ok := lookup("KMQ2_LOG_JSON_PATH"); ok {
		cfg.Logging.JSON.FilePath = raw
	}
	if raw, ok := lookup("KMQ2_LOG_FLUSH_INTERVAL"); ok && raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			cfg.Logging.JSON.FlushInterval = d
		} else {
			logger.Printf("invalid KMQ2_LOG_FLUSH_INTERVAL=%q: %v", raw, err)
		}
	}
	if raw, ok := lookup("KMQ2_METRICS_NAMESPACE"); ok && raw != "" {
		cfg.MetricsNamespace = raw
	}
	if raw, ok := lookup("KMQ2_DEBUG_ADDR"); ok {
		cfg.DebugAddr = raw
	}
	if raw, ok := lookup("AWS_REGION"); ok && raw != "" {
		cfg.S3.Region = raw
	}
	if raw, ok := lookup("KMQ2_S3_ENDPOINT"); ok {
		cfg.S3.Endpoint = raw
	}
	if id, ok := lookup("AWS_ACCESS_KEY_ID"); ok && id != "" {
		secret, _ := lookup("AWS_SECRET_ACCESS_KEY")
		token, _ := lookup("AWS_SESSION_TOKEN")
		cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey, cfg.S3.SessionToken = id, secret, token
	}
	return cfg
}

type envReader struct {
	lookup LookupFunc
	logger telemetry.Logger
}

func (e envReader) int(key string, dst *int) {
	raw, ok := e.lookup(key)
	if !ok || raw == "" {
		return
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		e.logger.Printf("invalid %s=%q: %v", key, raw, err)
		return
	}
	*dst = value
}

func (e envReader) bool(key string, dst *bool) {
	raw, ok := e.lookup(key)
	if !ok || raw == "" {
		return
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		e.logger.Printf("invalid %s=%q: %v", key, raw, err)
		return
	}
	*dst = value
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
