package main

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/haydenmc/kelvinbot/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		DataDirectory: "./data",
		Reconnection: config.ReconnectionConfig{
			InitialDelay: config.Duration(time.Second),
			MaxDelay:     config.Duration(time.Minute),
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		Services: map[string]config.ServiceConfig{
			"test": {
				Kind:       config.ServiceKindDummy,
				Middleware: config.MiddlewareList{"log", "echo"},
			},
		},
		Middlewares: map[string]config.MiddlewareConfig{
			"log":  {Kind: config.MiddlewareKindLogger},
			"echo": {Kind: config.MiddlewareKindEcho, Command: "!echo"},
		},
	}
}

func TestBuildBusFromConfig(t *testing.T) {
	t.Parallel()
	bus, err := buildBus(testConfig(), testLogger())
	if err != nil {
		t.Fatalf("buildBus: %v", err)
	}
	if bus == nil {
		t.Fatal("buildBus returned nil bus")
	}
}

func TestBuildBusSkipsUnknownKinds(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Services["future"] = config.ServiceConfig{Kind: "quantumchat"}
	cfg.Middlewares["mystery"] = config.MiddlewareConfig{Kind: "telepathy"}
	cfg.Services["test"] = config.ServiceConfig{
		Kind:       config.ServiceKindDummy,
		Middleware: config.MiddlewareList{"log", "mystery"},
	}

	if _, err := buildBus(cfg, testLogger()); err != nil {
		t.Fatalf("buildBus rejected unknown kinds instead of skipping: %v", err)
	}
}

func TestBuildBusRejectsMisconfiguredMiddleware(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		mc   config.MiddlewareConfig
	}{
		{"echo without command", config.MiddlewareConfig{Kind: config.MiddlewareKindEcho}},
		{"invite without command", config.MiddlewareConfig{Kind: config.MiddlewareKindInvite}},
		{"chatrelay without endpoints", config.MiddlewareConfig{Kind: config.MiddlewareKindChatRelay}},
		{"attendancerelay without endpoints", config.MiddlewareConfig{Kind: config.MiddlewareKindAttendanceRelay}},
		{"scheduledpost without interval", config.MiddlewareConfig{
			Kind: config.MiddlewareKindScheduledPost, DestService: "test",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Middlewares["broken"] = tt.mc
			if _, err := buildBus(cfg, testLogger()); err == nil {
				t.Errorf("buildBus accepted %s", tt.name)
			}
		})
	}
}

func TestBuildBusRejectsVoiceChannelWithoutURL(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Services["voice"] = config.ServiceConfig{Kind: config.ServiceKindVoiceChannel}
	if _, err := buildBus(cfg, testLogger()); err == nil {
		t.Error("buildBus accepted a voicechannel service without a url")
	}
}
