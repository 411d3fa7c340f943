// README: Driver simulator; connects as a driver, plans a route and replays it as live location shares.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"foodtrack/internal/broadcast"
	"foodtrack/internal/channel"
	"foodtrack/internal/config"
	"foodtrack/internal/contracts"
	"foodtrack/internal/infra"
	"foodtrack/internal/logging"
	"foodtrack/internal/maps"
	"foodtrack/internal/navigation"
	"foodtrack/internal/types"
)

type Config struct {
	BaseURL      string
	WSURL        string
	DriverID     string
	JWTSecret    string
	MapsAPIKey   string
	Language     string
	Origin       types.Point
	Destination  types.Point
	StepInterval time.Duration
	EmitInterval time.Duration
	Recalc       time.Duration
	Duration     time.Duration
	AutoConfirm  bool
}

func main() {
	logger := logging.New("driver-sim", slog.LevelInfo)
	if err := config.LoadDotEnv(); err != nil {
		logger.Error("dotenv_load_failed", "error", err)
		os.Exit(1)
	}
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("simulation_failed", "error", err)
		os.Exit(1)
	}
}

func loadConfig() (Config, error) {
	var cfg Config
	var origin, dest string
	flag.StringVar(&cfg.BaseURL, "base-url", config.EnvOrDefault("TRACK_SIM_BASE_URL", "http://localhost:8080"), "API base URL")
	flag.StringVar(&cfg.WSURL, "ws-url", config.EnvOrDefault("TRACK_SIM_WS_URL", ""), "Websocket URL (derived from base-url when empty)")
	flag.StringVar(&cfg.DriverID, "driver", config.EnvOrDefault("TRACK_SIM_DRIVER_ID", "driver-sim-1"), "Driver id to sign in as")
	flag.StringVar(&cfg.JWTSecret, "jwt-secret", config.EnvOrDefault("TRACK_JWT_SECRET", ""), "HS256 secret shared with the API")
	flag.StringVar(&cfg.MapsAPIKey, "maps-key", config.EnvOrDefault("TRACK_MAPS_API_KEY", ""), "Google Maps API key")
	flag.StringVar(&cfg.Language, "language", config.EnvOrDefault("TRACK_SIM_LANGUAGE", "en"), "Instruction language")
	flag.StringVar(&origin, "origin", config.EnvOrDefault("TRACK_SIM_ORIGIN", ""), "Start position as lat,lng")
	flag.StringVar(&dest, "dest", config.EnvOrDefault("TRACK_SIM_DEST", ""), "Destination as lat,lng")
	flag.DurationVar(&cfg.StepInterval, "step-interval", config.EnvOrDefaultDuration("TRACK_SIM_STEP_INTERVAL", 3*time.Second), "Time spent per replayed point")
	flag.DurationVar(&cfg.EmitInterval, "emit-interval", config.EnvOrDefaultDuration("TRACK_EMIT_INTERVAL", broadcast.DefaultInterval), "Location emission cadence")
	flag.DurationVar(&cfg.Recalc, "recalc", config.EnvOrDefaultDuration("TRACK_RECALC_DEBOUNCE", navigation.DefaultRecalcWindow), "Order leg recalculation window")
	flag.DurationVar(&cfg.Duration, "duration", config.EnvOrDefaultDuration("TRACK_SIM_DURATION", 0), "Stop after this long (0 runs until interrupted)")
	flag.BoolVar(&cfg.AutoConfirm, "yes", config.EnvOrDefaultBool("TRACK_SIM_CONFIRM", false), "Confirm first-time location sharing")
	flag.Parse()

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.WSURL == "" {
		cfg.WSURL = wsURL(cfg.BaseURL)
	}
	if cfg.JWTSecret == "" {
		return cfg, errors.New("jwt secret is required")
	}
	if cfg.MapsAPIKey == "" {
		return cfg, errors.New("maps api key is required")
	}
	var err error
	if cfg.Origin, err = parsePoint(origin); err != nil {
		return cfg, fmt.Errorf("origin: %w", err)
	}
	if cfg.Destination, err = parsePoint(dest); err != nil {
		return cfg, fmt.Errorf("dest: %w", err)
	}
	return cfg, nil
}

func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws"
	default:
		return base + "/ws"
	}
}

func parsePoint(s string) (types.Point, error) {
	lat, lng, ok := strings.Cut(s, ",")
	if !ok {
		return types.Point{}, fmt.Errorf("want lat,lng, got %q", s)
	}
	var p types.Point
	var err error
	if p.Lat, err = strconv.ParseFloat(strings.TrimSpace(lat), 64); err != nil {
		return types.Point{}, err
	}
	if p.Lng, err = strconv.ParseFloat(strings.TrimSpace(lng), 64); err != nil {
		return types.Point{}, err
	}
	if !p.Valid() {
		return types.Point{}, fmt.Errorf("out of range: %q", s)
	}
	return p, nil
}

func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	jwtManager, err := infra.NewJWTManager(cfg.JWTSecret, time.Hour)
	if err != nil {
		return err
	}
	token, err := jwtManager.Issue(cfg.DriverID, types.RoleDriver)
	if err != nil {
		return err
	}
	who := types.Identity{ID: types.ID(cfg.DriverID), Role: types.RoleDriver}

	routes, err := maps.NewRouteService(cfg.MapsAPIKey, cfg.Language)
	if err != nil {
		return err
	}
	nav := navigation.NewNavigator(routes, logger)
	route, err := nav.Plan(ctx, navigation.RouteRequest{Origin: cfg.Origin, Destination: cfg.Destination})
	if err != nil {
		return fmt.Errorf("plan route: %w", err)
	}
	if err := nav.StartGuidance(); err != nil {
		return err
	}
	logger.Info("route_planned", "summary", route.SelectedCandidate().Summary, "steps", len(route.Steps))

	client := channel.NewClient(
		channel.WSDialer{URL: cfg.WSURL},
		channel.HTTPProber{URL: cfg.BaseURL + "/health"},
		channel.Options{Logger: logger},
	)
	defer client.Disconnect()

	sim := newSession(ctx, cfg, token, client, nav, routes, logger)
	defer sim.close()

	if err := connect(ctx, client, who, token); err != nil {
		return err
	}

	profile := &broadcast.HTTPProfile{BaseURL: cfg.BaseURL, Token: token}
	shared, err := profile.HasSharedLocation(ctx)
	if err != nil {
		return fmt.Errorf("load driver profile: %w", err)
	}

	locator := &tapLocator{
		Locator: &broadcast.ReplayLocator{Points: routePoints(cfg.Origin, route.Steps), Interval: cfg.StepInterval, Accuracy: 10},
		onFix:   sim.onFix,
	}
	sharing := broadcast.New(locator, client, profile, shared, broadcast.Options{Interval: cfg.EmitInterval, Logger: logger})
	err = sharing.Activate(ctx)
	if errors.Is(err, broadcast.ErrConfirmationRequired) {
		if !cfg.AutoConfirm {
			sharing.Decline()
			return fmt.Errorf("%s (rerun with -yes)", broadcast.Message(err))
		}
		err = sharing.Confirm(ctx)
	}
	if err != nil {
		return errors.New(broadcast.Message(err))
	}
	if err := sharing.EmitNow(); err != nil {
		logger.Warn("initial_emit_failed", "error", err)
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sharing.Deactivate(stopCtx); err != nil {
		logger.Warn("deactivate_failed", "error", err, "message", broadcast.Message(err))
	}
	logger.Info("simulation_stopped")
	return nil
}

// connect waits for the first connect or connect_error event.
func connect(ctx context.Context, client *channel.Client, who types.Identity, token string) error {
	result := make(chan error, 1)
	offOK := client.OnConnect(func() {
		select {
		case result <- nil:
		default:
		}
	})
	defer offOK()
	offErr := client.OnConnectError(func(e contracts.ErrorEvent) {
		select {
		case result <- errors.New(e.Message):
		default:
		}
	})
	defer offErr()

	if err := client.Connect(who, token); err != nil {
		return err
	}
	select {
	case err := <-result:
		if err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// routePoints replays the start of every step and finishes at the last step's end.
func routePoints(origin types.Point, steps []navigation.Step) []types.Point {
	if len(steps) == 0 {
		return []types.Point{origin}
	}
	out := make([]types.Point, 0, len(steps)+1)
	for _, s := range steps {
		out = append(out, s.Start)
	}
	return append(out, steps[len(steps)-1].End)
}
