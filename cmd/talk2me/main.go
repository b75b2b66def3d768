package main

import (
	"fmt"
	"os"

	"talk2me/internal/apiclient"
	"talk2me/internal/observability"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	observability.InitLoggerWithWriter(os.Stderr, getEnv("LOG_LEVEL", "warn"), "text")

	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		msg := err.Error()
		if apiErr, ok := apiclient.AsAPIError(err); ok && apiErr.Message != "" {
			msg = apiErr.Message
		}
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", msg)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
