package main

import (
	"fmt"
	"os"

	"github.com/sierra-tahoe/smsops/common/environment"
	"github.com/sierra-tahoe/smsops/common/version"
	"github.com/sierra-tahoe/smsops/internal/smsops/app"
	"github.com/sierra-tahoe/smsops/internal/smsops/observability"
)

func main() {
	fmt.Printf("Sierra SMS Operations %s\n\n", version.Info())

	observability.Setup(
		environment.StringOr("LOG_LEVEL", "info"),
		environment.StringOr("LOG_FORMAT", "text"),
	)

	config := loadConfig()

	smsops, err := app.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize smsops: %v\n", err)
		os.Exit(1)
	}
	defer smsops.Stop()

	if err := smsops.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running smsops: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from environment variables.
func loadConfig() *app.Config {
	return &app.Config{
		DatabasePath:          environment.StringOr("DATABASE_PATH", "./smsops.db"),
		HTTPAddr:              environment.StringOr("HTTP_ADDR", ":8080"),
		SeedPath:              environment.StringOr("SEED_PATH", ""),
		WebhookRateLimit:      environment.IntOr("WEBHOOK_RATE_LIMIT", 0),
		SkipWebhookValidation: environment.BoolOr("SKIP_WEBHOOK_VALIDATION", false),
	}
}
