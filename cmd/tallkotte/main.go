// ABOUTME: Entry point for the tallkotte assistant gateway
// ABOUTME: Serves the HTTP API and offers one-shot commands against the same stores

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"github.com/2389/tallkotte/internal/api"
	"github.com/2389/tallkotte/internal/backend"
	"github.com/2389/tallkotte/internal/config"
	"github.com/2389/tallkotte/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _        _ _ _         _   _
| |_ __ _| | | | _____ | |_| |_ ___
| __/ _' | | | |/ / _ \| __| __/ _ \
| || (_| | | |   < (_) | |_| ||  __/
 \__\__,_|_|_|_|\_\___/ \__|\__\___|
`

// getConfigPath returns the path to the config file.
// Priority: TALLKOTTE_CONFIG env var > XDG_CONFIG_HOME/tallkotte/config.yaml > ~/.config/tallkotte/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("TALLKOTTE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "tallkotte", "config.yaml")
}

func usage() {
	fmt.Println("Usage: tallkotte <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                          Start the HTTP API")
	fmt.Println("  send -m TEXT [-t THREAD]       Send a message and print the reply")
	fmt.Println("  thread [--cv FILE]... [--init MSG]")
	fmt.Println("                                 Create and activate a thread seeded with files")
	fmt.Println("  response MESSAGE_ID            Print the reply to a user message")
	fmt.Println("  messages [-t THREAD] [-n N]    List recent messages")
	fmt.Println("  version                        Print the version")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "send":
		err = runSend(ctx, args)
	case "thread":
		err = runThread(ctx, args)
	case "response":
		err = runResponse(ctx, args)
	case "messages":
		err = runMessages(ctx, args)
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags reads "--name value" and "--name=value" pairs. aliases maps short
// and long spellings to a canonical name; repeated flags accumulate.
func parseFlags(args []string, aliases map[string]string) (map[string][]string, []string, error) {
	flags := make(map[string][]string)
	var positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			positional = append(positional, arg)
			continue
		}
		name, value, hasValue := strings.Cut(arg, "=")
		canonical, ok := aliases[name]
		if !ok {
			return nil, nil, fmt.Errorf("unknown flag: %s", name)
		}
		if !hasValue {
			if i+1 >= len(args) {
				return nil, nil, fmt.Errorf("%s requires a value", name)
			}
			value = args[i+1]
			i++
		}
		flags[canonical] = append(flags[canonical], value)
	}
	return flags, positional, nil
}

func last(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[len(values)-1]
}

// loadApp loads config and opens the app, logging to stderr.
func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)
	return newApp(ctx, cfg, logger)
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Driver)
	green.Print("    ▶ ")
	fmt.Printf("Cache:     %s\n", cfg.Cache.Driver)
	fmt.Println()

	if err := os.MkdirAll(cfg.Server.UploadDir, 0o750); err != nil {
		return fmt.Errorf("creating upload dir: %w", err)
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	assistantID := a.svc.Assistant().ID
	logger.Info("starting tallkotte",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"assistant_id", assistantID,
		"workers", a.pool.Size(),
		"upload_dir", cfg.Server.UploadDir,
	)

	handler := api.New(a.svc, a.events, api.Options{
		Version:        version,
		UploadDir:      cfg.Server.UploadDir,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	}, logger).Handler()
	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		// The parent context is already cancelled here.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.events.Close()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if drainErr := a.drain(); drainErr != nil {
		logger.Warn("background responses still running at exit", "error", drainErr)
	}
	return err
}

func runSend(ctx context.Context, args []string) error {
	flags, _, err := parseFlags(args, map[string]string{
		"-m": "message", "--message": "message",
		"-t": "thread", "--thread": "thread",
	})
	if err != nil {
		return err
	}
	text := strings.TrimSpace(last(flags["message"]))
	if text == "" {
		return fmt.Errorf("-m MESSAGE is required")
	}

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	msg, err := a.svc.SendMessage(ctx, text, last(flags["thread"]))
	if err != nil {
		return err
	}
	color.New(color.FgHiBlack).Printf("thread %s  message %s  run %s\n", msg.ThreadID, msg.ID, msg.RunID)

	if err := a.drain(); err != nil {
		return fmt.Errorf("waiting for response: %w", err)
	}
	replies, err := a.svc.GetResponse(ctx, msg.ID)
	if err != nil {
		return err
	}
	printMessages(replies)
	return nil
}

func runThread(ctx context.Context, args []string) error {
	flags, _, err := parseFlags(args, map[string]string{
		"--cv": "file", "--file": "file", "-f": "file",
		"--init": "init",
	})
	if err != nil {
		return err
	}

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	t, err := a.svc.CreateThread(ctx, flags["file"], last(flags["init"]), true)
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Print("▶ ")
	fmt.Printf("thread %s is now active\n", t.ID)
	return nil
}

func runResponse(ctx context.Context, args []string) error {
	_, positional, err := parseFlags(args, nil)
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		return fmt.Errorf("usage: tallkotte response MESSAGE_ID")
	}

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	replies, err := a.svc.GetResponse(ctx, positional[0])
	if errors.Is(err, store.ErrTimeout) {
		return fmt.Errorf("the run has not finished yet, try again shortly: %w", err)
	}
	if err != nil {
		return err
	}
	printMessages(replies)
	return nil
}

func runMessages(ctx context.Context, args []string) error {
	flags, _, err := parseFlags(args, map[string]string{
		"-t": "thread", "--thread": "thread",
		"-n": "limit", "--limit": "limit",
	})
	if err != nil {
		return err
	}
	opts := backend.ListOptions{Sort: backend.SortDesc}
	if v := last(flags["limit"]); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("-n must be a positive integer")
		}
		opts.Limit = n
	}

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	msgs, err := a.svc.GetMessages(ctx, last(flags["thread"]), opts)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		fmt.Println("no messages")
		return nil
	}
	// Newest first from the backend; print oldest first.
	slices.Reverse(msgs)
	printMessages(msgs)
	return nil
}

func printMessages(msgs []store.Message) {
	user := color.New(color.FgCyan, color.Bold)
	bot := color.New(color.FgGreen, color.Bold)
	for _, m := range msgs {
		if m.Role == store.RoleUser {
			user.Print("you: ")
		} else {
			bot.Print("assistant: ")
		}
		fmt.Println(m.Text())
	}
}
