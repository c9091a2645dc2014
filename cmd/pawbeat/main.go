package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/tgrayson/pawbeat/common/version"
	"github.com/tgrayson/pawbeat/internal/pawbeat/app"
)

func main() {
	fmt.Printf("Pawbeat\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Println()

	// A missing .env is fine; production deployments set real env vars.
	if err := godotenv.Load(); err == nil {
		fmt.Println("Loaded configuration from .env")
	}

	config, err := app.ConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	pawbeat, err := app.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize Pawbeat: %v\n", err)
		os.Exit(1)
	}
	defer pawbeat.Stop()

	if err := pawbeat.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running Pawbeat: %v\n", err)
		os.Exit(1)
	}
}
