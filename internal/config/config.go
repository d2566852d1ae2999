package config

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"mellium.im/xmpp/jid"
)

// Config holds all runtime configuration for the focus component.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	XMPPAddr  string // host:port of the XMPP server's component listener
	Domain    string // component domain, also the MUC room host
	Secret    string // shared secret for the component handshake
	HTTPPort  int
	DataDir   string
	LogLevel  string
	LogFormat string

	MediaBridge   string // static bridge address; empty means rely on the stats feed
	PubSubService string // pub/sub service publishing bridge stats; empty disables the feed
	PubSubNode    string

	EnableBundle       bool
	EnableRTX          bool
	EnableDataChannels bool

	MinParticipants   int
	LingerTime        time.Duration // how long an under-threshold conference keeps its media alive
	BridgeLiveness    time.Duration // stats silence after which a bridge is treated as down
	AllocationTimeout time.Duration // bridge answer deadline for a channel allocation
	RecordRetention   time.Duration // prune conference records older than this; zero keeps them forever
}

// defaults
const (
	defaultXMPPAddr          = "127.0.0.1:5347"
	defaultDomain            = "conference.localhost"
	defaultHTTPPort          = 8085
	defaultDataDir           = "./data"
	defaultLogLevel          = "info"
	defaultLogFormat         = "text"
	defaultPubSubNode        = "videobridge"
	defaultMinParticipants   = 2
	defaultLingerTime        = 0 * time.Second
	defaultBridgeLiveness    = 60 * time.Second
	defaultAllocationTimeout = 15 * time.Second
)

// envPrefix is the prefix for all focus environment variables.
const envPrefix = "MUCFOCUS_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("mucfocus", flag.ContinueOnError)

	fs.StringVar(&cfg.XMPPAddr, "xmpp-addr", defaultXMPPAddr, "host:port of the XMPP server's external component listener")
	fs.StringVar(&cfg.Domain, "domain", defaultDomain, "component domain served by the focus (also the MUC room host)")
	fs.StringVar(&cfg.Secret, "secret", "", "shared secret for the XEP-0114 component handshake (required)")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP listen port for the admin API and metrics")
	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for the conference history database")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")
	fs.StringVar(&cfg.MediaBridge, "media-bridge", "", "static videobridge address used when no stats feed is configured")
	fs.StringVar(&cfg.PubSubService, "pubsub-service", "", "pub/sub service to subscribe to for bridge statistics")
	fs.StringVar(&cfg.PubSubNode, "pubsub-node", defaultPubSubNode, "pub/sub node carrying bridge statistics")
	fs.BoolVar(&cfg.EnableBundle, "enable-bundle", true, "request bundled transport for allocated channels")
	fs.BoolVar(&cfg.EnableRTX, "enable-rtx", false, "advertise RTX (RFC 4588) retransmission support")
	fs.BoolVar(&cfg.EnableDataChannels, "enable-datachannels", true, "allocate SCTP data channels alongside media")
	fs.IntVar(&cfg.MinParticipants, "min-participants", defaultMinParticipants, "participants required before media is allocated")
	fs.DurationVar(&cfg.LingerTime, "linger-time", defaultLingerTime, "how long an under-threshold conference keeps its media before teardown")
	fs.DurationVar(&cfg.BridgeLiveness, "bridge-liveness", defaultBridgeLiveness, "stats silence after which a bridge is considered down")
	fs.DurationVar(&cfg.AllocationTimeout, "allocation-timeout", defaultAllocationTimeout, "how long to wait for a bridge to answer a channel allocation")
	fs.DurationVar(&cfg.RecordRetention, "record-retention", 0, "prune conference records older than this (0 keeps them forever)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the command line.
	// CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	// Track which flags were explicitly set via CLI.
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	// Map of flag name to env var name.
	envMap := map[string]string{
		"xmpp-addr":           envPrefix + "XMPP_ADDR",
		"domain":              envPrefix + "DOMAIN",
		"secret":              envPrefix + "SECRET",
		"http-port":           envPrefix + "HTTP_PORT",
		"data-dir":            envPrefix + "DATA_DIR",
		"log-level":           envPrefix + "LOG_LEVEL",
		"log-format":          envPrefix + "LOG_FORMAT",
		"media-bridge":        envPrefix + "MEDIA_BRIDGE",
		"pubsub-service":      envPrefix + "PUBSUB_SERVICE",
		"pubsub-node":         envPrefix + "PUBSUB_NODE",
		"enable-bundle":       envPrefix + "ENABLE_BUNDLE",
		"enable-rtx":          envPrefix + "ENABLE_RTX",
		"enable-datachannels": envPrefix + "ENABLE_DATACHANNELS",
		"min-participants":    envPrefix + "MIN_PARTICIPANTS",
		"linger-time":         envPrefix + "LINGER_TIME",
		"bridge-liveness":     envPrefix + "BRIDGE_LIVENESS",
		"allocation-timeout":  envPrefix + "ALLOCATION_TIMEOUT",
		"record-retention":    envPrefix + "RECORD_RETENTION",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "xmpp-addr":
			cfg.XMPPAddr = val
		case "domain":
			cfg.Domain = val
		case "secret":
			cfg.Secret = val
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "data-dir":
			cfg.DataDir = val
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		case "media-bridge":
			cfg.MediaBridge = val
		case "pubsub-service":
			cfg.PubSubService = val
		case "pubsub-node":
			cfg.PubSubNode = val
		case "enable-bundle":
			if v, err := strconv.ParseBool(val); err == nil {
				cfg.EnableBundle = v
			}
		case "enable-rtx":
			if v, err := strconv.ParseBool(val); err == nil {
				cfg.EnableRTX = v
			}
		case "enable-datachannels":
			if v, err := strconv.ParseBool(val); err == nil {
				cfg.EnableDataChannels = v
			}
		case "min-participants":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.MinParticipants = v
			}
		case "linger-time":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.LingerTime = v
			}
		case "bridge-liveness":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.BridgeLiveness = v
			}
		case "allocation-timeout":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.AllocationTimeout = v
			}
		case "record-retention":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.RecordRetention = v
			}
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if _, _, err := net.SplitHostPort(c.XMPPAddr); err != nil {
		return fmt.Errorf("xmpp-addr must be host:port, got %q", c.XMPPAddr)
	}
	if c.Domain == "" {
		return fmt.Errorf("domain must not be empty")
	}
	if _, err := jid.Parse(c.Domain); err != nil {
		return fmt.Errorf("domain %q is not a valid address: %w", c.Domain, err)
	}
	if c.Secret == "" {
		return fmt.Errorf("secret is required (set -secret or %sSECRET)", envPrefix)
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if c.MediaBridge != "" {
		if _, err := jid.Parse(c.MediaBridge); err != nil {
			return fmt.Errorf("media-bridge %q is not a valid address: %w", c.MediaBridge, err)
		}
	}
	if c.PubSubService != "" {
		if _, err := jid.Parse(c.PubSubService); err != nil {
			return fmt.Errorf("pubsub-service %q is not a valid address: %w", c.PubSubService, err)
		}
	}
	if c.MediaBridge == "" && c.PubSubService == "" {
		return fmt.Errorf("at least one of media-bridge and pubsub-service must be set")
	}
	if c.MinParticipants < 1 {
		return fmt.Errorf("min-participants must be at least 1, got %d", c.MinParticipants)
	}
	if c.LingerTime < 0 {
		return fmt.Errorf("linger-time must not be negative, got %s", c.LingerTime)
	}
	if c.BridgeLiveness <= 0 {
		return fmt.Errorf("bridge-liveness must be positive, got %s", c.BridgeLiveness)
	}
	if c.AllocationTimeout <= 0 {
		return fmt.Errorf("allocation-timeout must be positive, got %s", c.AllocationTimeout)
	}
	if c.RecordRetention < 0 {
		return fmt.Errorf("record-retention must not be negative, got %s", c.RecordRetention)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	return nil
}

// DomainJID returns the component domain as a parsed address. validate
// has already checked that it parses.
func (c *Config) DomainJID() (jid.JID, error) {
	j, err := jid.Parse(c.Domain)
	if err != nil {
		return jid.JID{}, fmt.Errorf("parsing domain: %w", err)
	}
	return j, nil
}

// MediaBridgeJID returns the statically configured bridge address, or a
// zero JID when bridge discovery relies on the stats feed alone.
func (c *Config) MediaBridgeJID() (jid.JID, error) {
	if c.MediaBridge == "" {
		return jid.JID{}, nil
	}
	j, err := jid.Parse(c.MediaBridge)
	if err != nil {
		return jid.JID{}, fmt.Errorf("parsing media bridge address: %w", err)
	}
	return j, nil
}

// HasPubSub reports whether a bridge stats feed is configured.
func (c *Config) HasPubSub() bool {
	return c.PubSubService != ""
}

// PubSubServiceJID returns the stats pub/sub service address, or a zero
// JID when no feed is configured.
func (c *Config) PubSubServiceJID() (jid.JID, error) {
	if c.PubSubService == "" {
		return jid.JID{}, nil
	}
	j, err := jid.Parse(c.PubSubService)
	if err != nil {
		return jid.JID{}, fmt.Errorf("parsing pubsub service address: %w", err)
	}
	return j, nil
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
