package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/pairwave/roomrelay/internal/origin"
)

const (
	envVarListenAddr      = "ROOMRELAY_LISTEN_ADDR"
	envVarMode            = "ROOMRELAY_MODE"
	envVarLogFormat       = "ROOMRELAY_LOG_FORMAT"
	envVarLogLevel        = "ROOMRELAY_LOG_LEVEL"
	envVarShutdownTimeout = "ROOMRELAY_SHUTDOWN_TIMEOUT"
	envVarStaticDir       = "ROOMRELAY_STATIC_DIR"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"
	envVarICEServers      = "ICE_SERVERS"

	// Signaling WebSocket hardening.
	envVarWSIdleTimeout        = "SIGNALING_WS_IDLE_TIMEOUT"
	envVarWSPingInterval       = "SIGNALING_WS_PING_INTERVAL"
	envVarMaxMessageBytes      = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarMaxMessagesPerSecond = "MAX_SIGNALING_MESSAGES_PER_SECOND"
)

const (
	DefaultListenAddr           = "127.0.0.1:8080"
	DefaultShutdownTimeout      = 15 * time.Second
	DefaultStaticDir            = "web"
	DefaultICEServerURL         = "stun:stun.l.google.com:19302"
	DefaultWSIdleTimeout        = 60 * time.Second
	DefaultWSPingInterval       = 20 * time.Second
	DefaultMaxMessageBytes      = int64(64 * 1024)
	DefaultMaxMessagesPerSecond = 50

	DefaultMode Mode = ModeDev
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	ListenAddr      string
	Mode            Mode
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration

	// StaticDir is the root directory of the browser application. Empty
	// disables static file serving.
	StaticDir string

	// AllowedOrigins is the browser Origin allowlist. Empty means same-host
	// only. Entries are normalized origins or "*".
	AllowedOrigins []string

	// ICEServerURLs is advertised to clients via GET /webrtc/ice; the relay
	// itself never opens a PeerConnection.
	ICEServerURLs []string

	WSIdleTimeout        time.Duration
	WSPingInterval       time.Duration
	MaxMessageBytes      int64
	MaxMessagesPerSecond int
}

// ICEServers returns the advertised ICE server list in pion's wire shape,
// which is also what browsers accept in RTCPeerConnection configuration.
func (c Config) ICEServers() []webrtc.ICEServer {
	if len(c.ICEServerURLs) == 0 {
		return nil
	}
	return []webrtc.ICEServer{{URLs: c.ICEServerURLs}}
}

// Load parses configuration from flags and environment variables. Flags win
// over environment variables, which win over defaults.
func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	fs := flag.NewFlagSet("roomrelay", flag.ContinueOnError)

	listenAddr := fs.String("listen-addr", envOrDefault(lookup, envVarListenAddr, DefaultListenAddr), "address to listen on (host:port)")
	modeRaw := fs.String("mode", envOrDefault(lookup, envVarMode, string(DefaultMode)), "dev or prod")
	logFormatRaw := fs.String("log-format", envOrDefault(lookup, envVarLogFormat, ""), "text or json (defaults per mode)")
	logLevelRaw := fs.String("log-level", envOrDefault(lookup, envVarLogLevel, ""), "debug, info, warn or error (defaults per mode)")
	shutdownRaw := fs.String("shutdown-timeout", envOrDefault(lookup, envVarShutdownTimeout, DefaultShutdownTimeout.String()), "graceful shutdown timeout")
	staticDir := fs.String("static-dir", envOrDefault(lookup, envVarStaticDir, DefaultStaticDir), "root directory of the browser app (empty disables)")
	originsRaw := fs.String("allowed-origins", envOrDefault(lookup, envVarAllowedOrigins, ""), "comma-separated Origin allowlist (empty: same-host only)")
	iceRaw := fs.String("ice-servers", envOrDefault(lookup, envVarICEServers, DefaultICEServerURL), "comma-separated STUN/TURN URLs advertised to clients")
	idleRaw := fs.String("ws-idle-timeout", envOrDefault(lookup, envVarWSIdleTimeout, DefaultWSIdleTimeout.String()), "signaling WebSocket idle timeout")
	pingRaw := fs.String("ws-ping-interval", envOrDefault(lookup, envVarWSPingInterval, DefaultWSPingInterval.String()), "signaling WebSocket ping interval")
	maxBytesRaw := fs.String("max-message-bytes", envOrDefault(lookup, envVarMaxMessageBytes, strconv.FormatInt(DefaultMaxMessageBytes, 10)), "max inbound signaling message size")
	maxRateRaw := fs.String("max-messages-per-second", envOrDefault(lookup, envVarMaxMessagesPerSecond, strconv.Itoa(DefaultMaxMessagesPerSecond)), "max inbound signaling messages per second per connection")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	var cfg Config
	var err error

	cfg.ListenAddr = strings.TrimSpace(*listenAddr)
	if cfg.ListenAddr == "" {
		return Config{}, fmt.Errorf("listen address must not be empty")
	}

	if cfg.Mode, err = parseMode(*modeRaw); err != nil {
		return Config{}, err
	}
	if cfg.LogFormat, err = parseLogFormat(withModeDefault(*logFormatRaw, cfg.Mode, string(LogFormatText), string(LogFormatJSON))); err != nil {
		return Config{}, err
	}
	if cfg.LogLevel, err = parseLogLevel(withModeDefault(*logLevelRaw, cfg.Mode, "debug", "info")); err != nil {
		return Config{}, err
	}

	if cfg.ShutdownTimeout, err = parseDuration(envVarShutdownTimeout, *shutdownRaw); err != nil {
		return Config{}, err
	}
	cfg.StaticDir = strings.TrimSpace(*staticDir)

	if cfg.AllowedOrigins, err = parseAllowedOrigins(*originsRaw); err != nil {
		return Config{}, err
	}
	cfg.ICEServerURLs = splitNonEmpty(*iceRaw)

	if cfg.WSIdleTimeout, err = parseDuration(envVarWSIdleTimeout, *idleRaw); err != nil {
		return Config{}, err
	}
	if cfg.WSPingInterval, err = parseDuration(envVarWSPingInterval, *pingRaw); err != nil {
		return Config{}, err
	}
	if cfg.WSPingInterval >= cfg.WSIdleTimeout {
		return Config{}, fmt.Errorf("%s must be shorter than %s", envVarWSPingInterval, envVarWSIdleTimeout)
	}

	if cfg.MaxMessageBytes, err = strconv.ParseInt(strings.TrimSpace(*maxBytesRaw), 10, 64); err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", envVarMaxMessageBytes, err)
	}
	if cfg.MaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("%s must be positive", envVarMaxMessageBytes)
	}

	if cfg.MaxMessagesPerSecond, err = strconv.Atoi(strings.TrimSpace(*maxRateRaw)); err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", envVarMaxMessagesPerSecond, err)
	}
	if cfg.MaxMessagesPerSecond <= 0 {
		return Config{}, fmt.Errorf("%s must be positive", envVarMaxMessagesPerSecond)
	}

	return cfg, nil
}

// NewLogger builds the process-wide slog.Logger for the configured mode.
func NewLogger(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	switch cfg.LogFormat {
	case LogFormatJSON:
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	default:
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func withModeDefault(raw string, mode Mode, devDefault, prodDefault string) string {
	if strings.TrimSpace(raw) != "" {
		return raw
	}
	if mode == ModeProd {
		return prodDefault
	}
	return devDefault
}

func parseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeDev:
		return ModeDev, nil
	case ModeProd:
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid %s %q (want dev or prod)", envVarMode, raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch LogFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case LogFormatText:
		return LogFormatText, nil
	case LogFormatJSON:
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid %s %q (want text or json)", envVarLogFormat, raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid %s %q", envVarLogLevel, raw)
	}
}

func parseDuration(name, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", name)
	}
	return d, nil
}

func parseAllowedOrigins(raw string) ([]string, error) {
	var out []string
	for _, entry := range splitNonEmpty(raw) {
		if entry == "*" {
			out = append(out, entry)
			continue
		}
		normalized, _, ok := origin.Normalize(entry)
		if !ok {
			return nil, fmt.Errorf("invalid %s entry %q", envVarAllowedOrigins, entry)
		}
		out = append(out, normalized)
	}
	return out, nil
}

func splitNonEmpty(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
