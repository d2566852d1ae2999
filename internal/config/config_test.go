package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"mellium.im/xmpp/jid"
)

func TestDefaults(t *testing.T) {
	// Clear any env vars that might interfere.
	for _, env := range []string{
		"MUCFOCUS_XMPP_ADDR", "MUCFOCUS_DOMAIN", "MUCFOCUS_SECRET",
		"MUCFOCUS_HTTP_PORT", "MUCFOCUS_DATA_DIR", "MUCFOCUS_LOG_LEVEL",
		"MUCFOCUS_MEDIA_BRIDGE", "MUCFOCUS_PUBSUB_SERVICE",
	} {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}

	os.Args = []string{"mucfocus", "--secret", "hunter2", "--media-bridge", "jvb.example.com"}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.XMPPAddr != defaultXMPPAddr {
		t.Errorf("XMPPAddr = %q, want %q", cfg.XMPPAddr, defaultXMPPAddr)
	}
	if cfg.Domain != defaultDomain {
		t.Errorf("Domain = %q, want %q", cfg.Domain, defaultDomain)
	}
	if cfg.HTTPPort != defaultHTTPPort {
		t.Errorf("HTTPPort = %d, want %d", cfg.HTTPPort, defaultHTTPPort)
	}
	if cfg.DataDir != defaultDataDir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, defaultDataDir)
	}
	if cfg.PubSubNode != defaultPubSubNode {
		t.Errorf("PubSubNode = %q, want %q", cfg.PubSubNode, defaultPubSubNode)
	}
	if cfg.MinParticipants != defaultMinParticipants {
		t.Errorf("MinParticipants = %d, want %d", cfg.MinParticipants, defaultMinParticipants)
	}
	if cfg.LingerTime != defaultLingerTime {
		t.Errorf("LingerTime = %s, want %s", cfg.LingerTime, defaultLingerTime)
	}
	if cfg.AllocationTimeout != defaultAllocationTimeout {
		t.Errorf("AllocationTimeout = %s, want %s", cfg.AllocationTimeout, defaultAllocationTimeout)
	}
	if !cfg.EnableBundle || !cfg.EnableDataChannels {
		t.Error("bundle and data channels should default to enabled")
	}
	if cfg.EnableRTX {
		t.Error("RTX should default to disabled")
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, defaultLogLevel)
	}
}

func TestEnvVarOverride(t *testing.T) {
	os.Args = []string{"mucfocus"}
	t.Setenv("MUCFOCUS_SECRET", "hunter2")
	t.Setenv("MUCFOCUS_MEDIA_BRIDGE", "jvb.example.com")
	t.Setenv("MUCFOCUS_HTTP_PORT", "9090")
	t.Setenv("MUCFOCUS_DOMAIN", "chat.example.com")
	t.Setenv("MUCFOCUS_LOG_LEVEL", "debug")
	t.Setenv("MUCFOCUS_BRIDGE_LIVENESS", "90s")
	t.Setenv("MUCFOCUS_ENABLE_RTX", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Secret != "hunter2" {
		t.Errorf("Secret = %q, want hunter2", cfg.Secret)
	}
	if cfg.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %d, want 9090", cfg.HTTPPort)
	}
	if cfg.Domain != "chat.example.com" {
		t.Errorf("Domain = %q, want chat.example.com", cfg.Domain)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.BridgeLiveness != 90*time.Second {
		t.Errorf("BridgeLiveness = %s, want 90s", cfg.BridgeLiveness)
	}
	if !cfg.EnableRTX {
		t.Error("EnableRTX = false, want env override to true")
	}
}

func TestCLIFlagsPrecedence(t *testing.T) {
	// CLI flags should override env vars.
	os.Args = []string{"mucfocus", "--secret", "hunter2", "--media-bridge", "jvb.example.com", "--http-port", "3000", "--log-level", "warn"}
	t.Setenv("MUCFOCUS_HTTP_PORT", "9090")
	t.Setenv("MUCFOCUS_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 3000 {
		t.Errorf("HTTPPort = %d, want 3000 (CLI should override env)", cfg.HTTPPort)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn (CLI should override env)", cfg.LogLevel)
	}
}

func TestValidateMissingSecret(t *testing.T) {
	os.Args = []string{"mucfocus", "--media-bridge", "jvb.example.com"}
	os.Unsetenv("MUCFOCUS_SECRET")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error when secret is missing, got nil")
	}
}

func TestValidateNoBridgeSource(t *testing.T) {
	os.Args = []string{"mucfocus", "--secret", "hunter2"}
	os.Unsetenv("MUCFOCUS_MEDIA_BRIDGE")
	os.Unsetenv("MUCFOCUS_PUBSUB_SERVICE")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error when neither media-bridge nor pubsub-service is set")
	}
}

func TestValidateInvalidPort(t *testing.T) {
	os.Args = []string{"mucfocus", "--secret", "hunter2", "--media-bridge", "jvb.example.com", "--http-port", "99999"}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid port, got nil")
	}
}

func TestValidateInvalidLogLevel(t *testing.T) {
	os.Args = []string{"mucfocus", "--secret", "hunter2", "--media-bridge", "jvb.example.com", "--log-level", "verbose"}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
}

func TestValidateBadXMPPAddr(t *testing.T) {
	os.Args = []string{"mucfocus", "--secret", "hunter2", "--media-bridge", "jvb.example.com", "--xmpp-addr", "no-port-here"}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for xmpp-addr without a port, got nil")
	}
}

func TestDurationFlags(t *testing.T) {
	os.Args = []string{
		"mucfocus", "--secret", "hunter2", "--media-bridge", "jvb.example.com",
		"--linger-time", "30s", "--allocation-timeout", "5s",
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LingerTime != 30*time.Second {
		t.Errorf("LingerTime = %s, want 30s", cfg.LingerTime)
	}
	if cfg.AllocationTimeout != 5*time.Second {
		t.Errorf("AllocationTimeout = %s, want 5s", cfg.AllocationTimeout)
	}
}

func TestAddressHelpers(t *testing.T) {
	cfg := &Config{
		Domain:      "conference.example.com",
		MediaBridge: "jvb.example.com",
	}

	domain, err := cfg.DomainJID()
	if err != nil {
		t.Fatalf("DomainJID: %v", err)
	}
	if domain.String() != "conference.example.com" {
		t.Errorf("DomainJID = %q, want conference.example.com", domain.String())
	}

	br, err := cfg.MediaBridgeJID()
	if err != nil {
		t.Fatalf("MediaBridgeJID: %v", err)
	}
	if br.String() != "jvb.example.com" {
		t.Errorf("MediaBridgeJID = %q, want jvb.example.com", br.String())
	}

	svc, err := cfg.PubSubServiceJID()
	if err != nil {
		t.Fatalf("PubSubServiceJID: %v", err)
	}
	if !svc.Equal(jid.JID{}) {
		t.Errorf("PubSubServiceJID = %q, want zero JID for empty config", svc.String())
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}
			if got := cfg.SlogLevel(); got != tt.want {
				t.Errorf("SlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}
