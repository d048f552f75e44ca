// Command oauth-init signs in once from a terminal and stores the
// credential in the session state database, so a headless rupee server
// restores the session on start. With a ledger id or URL as its only
// argument it also connects that ledger; otherwise it reports what the
// locator finds.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"rupee/internal/backend"
	"rupee/internal/cli"
	"rupee/internal/locator"
	"rupee/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentSession)
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitStateStore(logger, cfg.StateDBPath)
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		fatal(logger, "Invalid backend configuration", err)
	}
	be, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg, repo)
	if err != nil {
		fatal(logger, "Failed to initialize backend", err)
	}

	loginCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	fmt.Println("Complete the sign-in in your browser.")
	p, err := be.Sessions.Login(loginCtx)
	if err != nil {
		fatal(logger, "Login failed", err)
	}
	fmt.Printf("Signed in as %s\n", p.Email)

	loc := locator.New(be.Gateway, repo, cfg.LedgerAppName, logger)
	var res locator.Resolution
	if len(os.Args) > 1 {
		res, err = loc.Connect(ctx, p, os.Args[1])
	} else {
		res, err = loc.Resolve(ctx, p)
	}
	if err != nil {
		fatal(logger, "Ledger lookup failed", err)
	}

	switch {
	case res.NeedsLedger:
		fmt.Printf("No ledger named %q yet; create one from the app or pass an id.\n", loc.NamingConvention(p))
	default:
		fmt.Printf("Using ledger %q (%s)\n", res.Title, res.LedgerID)
	}
	fmt.Printf("Credential saved to %s\n", cfg.StateDBPath)
}

func fatal(logger *log.Logger, msg string, err error) {
	logger.Error(msg, log.FieldError, err)
	os.Exit(1)
}
