package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"statuslight/internal/api"
	"statuslight/internal/calendar"
	"statuslight/internal/clock"
	"statuslight/internal/config"
	"statuslight/internal/govee"
	"statuslight/internal/light"
	"statuslight/internal/scheduler"
	"statuslight/internal/state"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, using environment variables")
	}

	configPath := os.Getenv("STATUSLIGHT_CONFIG")
	if configPath == "" {
		configPath = config.DefaultPath
	}
	cfg, err := config.Load(configPath, logger)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Starting Status Light",
		zap.String("calendar_id", cfg.CalendarID),
		zap.String("state_file", cfg.StateFile),
		zap.Int("api_port", cfg.APIPort))

	store := state.NewStore(cfg.StateFile, cfg.Settings(), logger)
	defer store.Close()

	ctx := context.Background()
	cal := buildCalendarClient(ctx, logger)
	if cal == nil {
		logger.Warn("Calendar access not configured, running on manual status only")
	}

	actuator := light.NewActuator(buildGoveeController(cfg, logger), logger)

	// Seed the idempotence cache so a restart does not resend the state
	// the light is already in.
	snap := store.Snapshot()
	actuator.Prime(snap.LastPowerApplied, snap.LastColorApplied)

	controller := scheduler.New(store, cal, actuator, clock.NewRealClock(), logger)
	controller.Start()
	defer controller.Stop()

	server := api.NewServer(store, controller, logger, cfg.APIPort)
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start API server", zap.Error(err))
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down gracefully...")
	if err := server.Stop(); err != nil {
		logger.Error("API server shutdown failed", zap.Error(err))
	}
}

// buildCalendarClient wires Google Calendar access from the environment.
// Returns nil when not configured; the daemon still runs, on manual status
// and the light alone.
func buildCalendarClient(ctx context.Context, logger *zap.Logger) calendar.Client {
	tokenFile := os.Getenv("GOOGLE_TOKEN_FILE")
	if tokenFile == "" {
		return nil
	}

	data, err := os.ReadFile(tokenFile)
	if err != nil {
		logger.Warn("Failed to read Google token file",
			zap.String("path", tokenFile),
			zap.Error(err))
		return nil
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		logger.Warn("Failed to parse Google token file",
			zap.String("path", tokenFile),
			zap.Error(err))
		return nil
	}

	// With client credentials the token refreshes itself; without them the
	// access token works until it expires.
	var ts oauth2.TokenSource
	clientID := os.Getenv("GOOGLE_CLIENT_ID")
	clientSecret := os.Getenv("GOOGLE_CLIENT_SECRET")
	if clientID != "" && clientSecret != "" {
		oc := &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gcal.CalendarReadonlyScope},
		}
		ts = oc.TokenSource(ctx, &token)
	} else {
		logger.Warn("No Google client credentials, access token will not refresh")
		ts = oauth2.StaticTokenSource(&token)
	}

	client, err := calendar.NewGoogleClient(ctx, ts, logger)
	if err != nil {
		logger.Warn("Failed to create calendar client", zap.Error(err))
		return nil
	}
	return client
}

// buildGoveeController returns the real Govee client, or a recording stub
// when the device is not configured so the rest of the daemon still works.
func buildGoveeController(cfg config.Config, logger *zap.Logger) govee.Controller {
	apiKey := os.Getenv("GOVEE_API_KEY")
	if apiKey == "" || cfg.GoveeDevice == "" {
		logger.Warn("Govee not configured, light commands will be dropped")
		return govee.NewMockController()
	}
	return govee.NewClient(apiKey, cfg.GoveeDevice, cfg.GoveeModel, logger)
}
