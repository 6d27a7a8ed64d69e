package main

import (
	"fmt"
	"log/slog"

	"github.com/haydenmc/kelvinbot/internal/config"
	"github.com/haydenmc/kelvinbot/internal/core"
	"github.com/haydenmc/kelvinbot/internal/middlewares"
	"github.com/haydenmc/kelvinbot/internal/services/dummy"
	"github.com/haydenmc/kelvinbot/internal/services/federated"
	"github.com/haydenmc/kelvinbot/internal/services/voicechannel"
)

// Default texts for attendance-relay instances that do not configure
// their own.
const (
	defaultSessionStartText = "Session in progress"
	defaultSessionEndText   = "Session ended"
	defaultEndedEditText    = "Session has ended."
)

// buildBus materializes the configuration: one Bus, one Service
// instance per configured service, one Middleware instance per
// configured middleware (shared across every pipeline that names it).
// Unknown kinds are skipped with a warning; everything else that fails
// to construct is a fatal configuration error.
func buildBus(cfg *config.Config, logger *slog.Logger) (*core.Bus, error) {
	bus := core.NewBus(core.Config{Logger: logger})

	built := make(map[string]core.Middleware, len(cfg.Middlewares))
	for name, mc := range cfg.Middlewares {
		if !config.KnownMiddlewareKind(mc.Kind) {
			logger.Warn("skipping middleware of unknown kind", "name", name, "kind", mc.Kind)
			continue
		}
		mw, err := buildMiddleware(mc, bus.Commands(), logger)
		if err != nil {
			return nil, fmt.Errorf("middleware %q: %w", name, err)
		}
		built[name] = mw
	}

	for name, sc := range cfg.Services {
		if !config.KnownServiceKind(sc.Kind) {
			logger.Warn("skipping service of unknown kind", "name", name, "kind", sc.Kind)
			continue
		}
		svc, err := buildService(name, sc, cfg, bus.Events(), logger)
		if err != nil {
			return nil, fmt.Errorf("service %q: %w", name, err)
		}

		var pipeline []core.Middleware
		for _, mwName := range sc.Middleware {
			mw, ok := built[mwName]
			if !ok {
				// Validation guarantees the name is defined; it can only
				// be missing here because its kind was unknown.
				logger.Warn("service pipeline drops middleware of unknown kind",
					"service", name, "middleware", mwName)
				continue
			}
			pipeline = append(pipeline, mw)
		}

		bus.Register(core.ServiceRegistration{
			ID:       core.ServiceID(name),
			Service:  svc,
			Pipeline: pipeline,
			Reconnect: core.ReconnectionConfig{
				InitialDelay: cfg.Reconnection.InitialDelay.Std(),
				MaxDelay:     cfg.Reconnection.MaxDelay.Std(),
				Multiplier:   cfg.Reconnection.Multiplier,
				JitterFactor: cfg.Reconnection.JitterFactor,
			},
		})
	}

	return bus, nil
}

func buildService(name string, sc config.ServiceConfig, cfg *config.Config,
	events chan<- core.Event, logger *slog.Logger) (core.Service, error) {

	id := core.ServiceID(name)
	switch sc.Kind {
	case config.ServiceKindDummy:
		return dummy.New(events, dummy.Config{
			ID:           id,
			EmitInterval: sc.EmitInterval.Std(),
			Logger:       logger,
		}), nil

	case config.ServiceKindVoiceChannel:
		if sc.URL == "" {
			return nil, fmt.Errorf("url is required")
		}
		return voicechannel.New(events, voicechannel.Config{
			ID:      id,
			URL:     sc.URL,
			Token:   sc.Token,
			Channel: sc.Channel,
			Logger:  logger,
		}), nil

	case config.ServiceKindFederated:
		return federated.New(events, federated.Config{
			ID:           id,
			Homeserver:   sc.Homeserver,
			AdminBaseURL: sc.AdminBaseURL,
			AdminToken:   sc.AdminToken,
			Org:          sc.Org,
			DataDir:      cfg.ServiceDataDir(name),
			Logger:       logger,
		})

	default:
		return nil, fmt.Errorf("unknown kind %q", sc.Kind)
	}
}

func buildMiddleware(mc config.MiddlewareConfig, commands chan<- core.Command,
	logger *slog.Logger) (core.Middleware, error) {

	switch mc.Kind {
	case config.MiddlewareKindEcho:
		if mc.Command == "" {
			return nil, fmt.Errorf("command is required")
		}
		return middlewares.NewEcho(commands, mc.Command, logger), nil

	case config.MiddlewareKindInvite:
		if mc.Command == "" {
			return nil, fmt.Errorf("command is required")
		}
		return middlewares.NewInvite(commands, middlewares.InviteConfig{
			Command: mc.Command,
			Uses:    mc.UsesAllowed,
			Expiry:  mc.Expiry.Std(),
			Logger:  logger,
		}), nil

	case config.MiddlewareKindLogger:
		return middlewares.NewLogger(logger), nil

	case config.MiddlewareKindChatRelay:
		if mc.SourceService == "" || mc.DestService == "" {
			return nil, fmt.Errorf("source_service and dest_service are required")
		}
		return middlewares.NewChatRelay(commands, middlewares.ChatRelayConfig{
			SourceServiceID: core.ServiceID(mc.SourceService),
			SourceRoomID:    mc.SourceRoom,
			DestServiceID:   core.ServiceID(mc.DestService),
			DestRoomID:      mc.DestRoom,
			PrefixTag:       mc.PrefixTag,
			Logger:          logger,
		}), nil

	case config.MiddlewareKindAttendanceRelay:
		if mc.SourceService == "" || mc.DestService == "" {
			return nil, fmt.Errorf("source_service and dest_service are required")
		}
		arc := middlewares.AttendanceRelayConfig{
			SourceServiceID:  core.ServiceID(mc.SourceService),
			SourceRoomID:     mc.SourceRoom,
			DestServiceID:    core.ServiceID(mc.DestService),
			DestRoomID:       mc.DestRoom,
			SessionStartText: mc.SessionStartText,
			SessionEndText:   mc.SessionEndText,
			EndedEditText:    mc.EndedEditText,
			ReplyTimeout:     mc.ReplyTimeout.Std(),
			Logger:           logger,
		}
		if arc.SessionStartText == "" {
			arc.SessionStartText = defaultSessionStartText
		}
		if arc.SessionEndText == "" {
			arc.SessionEndText = defaultSessionEndText
		}
		if arc.EndedEditText == "" {
			arc.EndedEditText = defaultEndedEditText
		}
		return middlewares.NewAttendanceRelay(commands, arc), nil

	case config.MiddlewareKindScheduledPost:
		if mc.DestService == "" || mc.Interval.Std() <= 0 {
			return nil, fmt.Errorf("dest_service and a positive interval are required")
		}
		return middlewares.NewScheduledPost(commands, middlewares.ScheduledPostConfig{
			DestServiceID: core.ServiceID(mc.DestService),
			DestRoomID:    mc.DestRoom,
			Body:          mc.Body,
			Interval:      mc.Interval.Std(),
			Logger:        logger,
		}), nil

	default:
		return nil, fmt.Errorf("unknown kind %q", mc.Kind)
	}
}
