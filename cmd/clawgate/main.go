package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/roelfdiedericks/clawgate/internal/auth"
	"github.com/roelfdiedericks/clawgate/internal/config"
	"github.com/roelfdiedericks/clawgate/internal/gateway"
	"github.com/roelfdiedericks/clawgate/internal/gwerr"
	. "github.com/roelfdiedericks/clawgate/internal/logging"
	"github.com/roelfdiedericks/clawgate/internal/setup"
)

var version = "dev"

type cli struct {
	LogLevel string `help:"Log level (trace, debug, info, warn, error, fatal)." short:"l"`

	Serve      serveCmd      `cmd:"" default:"1" help:"Run the gateway server."`
	Login      loginCmd      `cmd:"" help:"Authenticate against a provider via OAuth."`
	Refresh    refreshCmd    `cmd:"" help:"Force a token refresh for a provider."`
	Logout     logoutCmd     `cmd:"" help:"Remove stored credentials for a provider."`
	Status     statusCmd     `cmd:"" help:"Show stored credential state."`
	SetupToken setupTokenCmd `cmd:"" name:"setup-token" help:"Store a long-lived Anthropic token directly."`
	Version    versionCmd    `cmd:"" help:"Print the version."`
}

type serveCmd struct {
	Bind     string `help:"Listen address override."`
	Port     int    `help:"Listen port override."`
	Headless bool   `help:"Refuse interactive prompts; rely on stored or seeded tokens."`
}

type loginCmd struct {
	Provider string `help:"Provider to authenticate." enum:"anthropic,chatgpt" default:"anthropic"`
	LongTerm bool   `name:"long-term" help:"Request a long-lived token (Anthropic only)."`
}

type refreshCmd struct {
	Provider string `help:"Provider to refresh." enum:"anthropic,chatgpt" default:"anthropic"`
}

type logoutCmd struct {
	Provider string `help:"Provider to log out of." enum:"anthropic,chatgpt" default:"anthropic"`
}

type statusCmd struct{}

type setupTokenCmd struct{}

type versionCmd struct{}

func main() {
	var app cli
	parsed := kong.Parse(&app,
		kong.Name("clawgate"),
		kong.Description("Local multi-provider LLM API gateway."),
		kong.UsageOnError(),
	)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if app.LogLevel != "" {
		cfg.LogLevel = app.LogLevel
	}
	Init(&Config{Level: ParseLevel(cfg.LogLevel)})

	if err := run(parsed.Command(), &app, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps failures to shell exit codes: 2 for authentication problems,
// 1 for everything else.
func exitCode(err error) int {
	var authErr *auth.AuthError
	if errors.Is(err, gwerr.ErrAuthAbsent) || errors.Is(err, gwerr.ErrAuthExpired) || errors.As(err, &authErr) {
		return 2
	}
	return 1
}

func run(command string, app *cli, cfg *config.Config) error {
	switch command {
	case "serve", "":
		return runServe(&app.Serve, cfg)
	case "login":
		return runLogin(&app.Login, cfg)
	case "refresh":
		return runRefresh(&app.Refresh, cfg)
	case "logout":
		return runLogout(&app.Logout, cfg)
	case "status":
		setup.ShowStatus(auth.NewAnthropicStore(cfg.TokenFile), auth.NewChatGPTStore())
		return nil
	case "setup-token":
		return setup.SetupToken(auth.NewAnthropicStore(cfg.TokenFile))
	case "version":
		fmt.Printf("clawgate %s\n", version)
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func runServe(cmd *serveCmd, cfg *config.Config) error {
	if cmd.Bind != "" {
		cfg.Server.Bind = cmd.Bind
	}
	if cmd.Port != 0 {
		cfg.Server.Port = cmd.Port
	}

	if cmd.Headless && cfg.AnthropicOAuthToken == "" {
		status := auth.NewAnthropicStore(cfg.TokenFile).Status()
		if !status.Present {
			L_warn("serve: headless mode with no Anthropic credentials; Anthropic routes will fail until a token is seeded")
		}
	}

	L_info("clawgate starting", "version", version, "listen", cfg.ListenAddr())

	server := gateway.NewServer(cfg)
	if err := server.Start(); err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	L_info("clawgate shutting down", "signal", sig.String())

	return server.Stop()
}

func runLogin(cmd *loginCmd, cfg *config.Config) error {
	provider, store := providerStore(cmd.Provider, cfg)
	if cmd.LongTerm && provider != auth.ProviderAnthropic {
		return errors.New("--long-term is only supported for the anthropic provider")
	}
	return setup.Login(provider, store, cmd.LongTerm)
}

func runRefresh(cmd *refreshCmd, cfg *config.Config) error {
	provider, store := providerStore(cmd.Provider, cfg)

	bundle, err := store.Load()
	if err != nil {
		return fmt.Errorf("no stored credentials for %s: %w", provider, err)
	}
	if bundle == nil {
		return fmt.Errorf("no stored credentials for %s: %w", provider, gwerr.ErrAuthAbsent)
	}
	if bundle.LongTerm() {
		return errors.New("long-lived tokens are not refreshable")
	}
	if bundle.RefreshToken == "" {
		return errors.New("stored credentials carry no refresh token")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	fresh, err := auth.NewClient().Refresh(ctx, provider, bundle.RefreshToken)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}
	if err := store.Save(fresh); err != nil {
		return fmt.Errorf("failed to save refreshed tokens: %w", err)
	}

	fmt.Printf("Refreshed %s credentials, expires in %s\n", provider, fresh.TimeRemaining())
	return nil
}

func runLogout(cmd *logoutCmd, cfg *config.Config) error {
	provider, store := providerStore(cmd.Provider, cfg)
	if err := store.Clear(); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	fmt.Printf("Removed %s credentials from %s\n", provider, store.Path())
	return nil
}

func providerStore(name string, cfg *config.Config) (auth.Provider, *auth.Store) {
	if name == "chatgpt" {
		return auth.ProviderChatGPT, auth.NewChatGPTStore()
	}
	return auth.ProviderAnthropic, auth.NewAnthropicStore(cfg.TokenFile)
}
