// DiceRobot - QQ dice and chat assistant
// License: MIT
//
// Copyright (c) 2026 DiceRobot contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dicerobot/dicerobot/pkg/app"
	"github.com/dicerobot/dicerobot/pkg/config"
	"github.com/dicerobot/dicerobot/pkg/logger"
)

const logo = "🎲"

func main() {
	command := "serve"
	args := os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		command = args[0]
		args = args[1:]
	}

	env, err := loadEnv(args)
	if err != nil {
		fmt.Printf("Error loading environment: %v\n", err)
		os.Exit(1)
	}

	switch command {
	case "serve":
		serveCmd(env)
	case "console":
		consoleCmd(env)
	case "status":
		statusCmd(env)
	case "passwd":
		passwdCmd(env)
	case "version", "--version", "-v":
		fmt.Printf("%s dicerobot %s\n", logo, app.Version)
	case "help", "--help", "-h":
		printHelp()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printHelp()
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Printf("%s dicerobot - QQ dice and chat assistant %s\n\n", logo, app.Version)
	fmt.Println("Usage: dicerobot <command> [--debug] [--env <file>]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve       Run the webhook server and scheduler (default)")
	fmt.Println("  console     Talk to the plugins from a local shell")
	fmt.Println("  status      Show stored settings")
	fmt.Println("  passwd      Set the admin panel password")
	fmt.Println("  version     Show version information")
}

// loadEnv reads the .env file (or the one given with --env) and applies the
// command line flags on top.
func loadEnv(args []string) (*config.Env, error) {
	envFile := ".env"
	debug := false
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--debug", "-d":
			debug = true
		case "--env", "-e":
			if i+1 < len(args) {
				envFile = args[i+1]
				i++
			}
		}
	}

	env, err := config.LoadEnv(envFile)
	if err != nil {
		return nil, err
	}
	if debug {
		env.Debug = true
	}
	return env, nil
}

func serveCmd(env *config.Env) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		a, err := app.New(ctx, app.Options{Env: env})
		if err != nil {
			fmt.Printf("Error starting dicerobot: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s dicerobot %s listening on %s\n", logo, app.Version, env.Addr())
		fmt.Println("Press Ctrl+C to stop")

		err = a.Run(ctx)
		if closeErr := a.Close(); closeErr != nil {
			fmt.Printf("Error during shutdown: %v\n", closeErr)
		}

		switch {
		case errors.Is(err, app.ErrRestart) && ctx.Err() == nil:
			fmt.Println("Restarting...")
			continue
		case err != nil && !errors.Is(err, app.ErrRestart):
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("✓ dicerobot stopped")
		return
	}
}

func statusCmd(env *config.Env) {
	store, closeDB, err := openStore(env)
	if err != nil {
		fmt.Printf("Error loading settings: %v\n", err)
		os.Exit(1)
	}
	defer closeDB()

	settings := store.Settings()
	mark := func(set bool) string {
		if set {
			return "✓"
		}
		return "not set"
	}

	fmt.Printf("%s dicerobot status\n\n", logo)
	fmt.Println("Database:", env.Database)
	fmt.Println("Listen:", env.Addr())
	fmt.Println("Log level:", logger.ParseLevel(env.LogLevel))
	fmt.Println("Webhook secret:", mark(settings.Security.Webhook.Secret != ""))
	fmt.Println("Admin password:", mark(settings.Security.Admin.PasswordHash != ""))
	fmt.Println("JWT algorithm:", settings.Security.JWT.Algorithm)
	fmt.Println("Gateway API:", settings.Gateway.APIBaseURL)
	if settings.Gateway.WSURL != "" {
		fmt.Println("Gateway events:", settings.Gateway.WSURL)
	} else {
		fmt.Println("Gateway events: webhook")
	}
	fmt.Println("Start gateway at startup:", settings.App.StartGatewayAtStartup)
	fmt.Println("Data dir:", settings.Dirs.Data)
}
