package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/wesm/repo-pulse/config"
	"github.com/wesm/repo-pulse/internal/api"
	"github.com/wesm/repo-pulse/internal/db"
	"github.com/wesm/repo-pulse/internal/logging"
	"github.com/wesm/repo-pulse/internal/models"
	"github.com/wesm/repo-pulse/internal/server"
	"github.com/wesm/repo-pulse/internal/session"
	"github.com/wesm/repo-pulse/internal/settings"
	"github.com/wesm/repo-pulse/internal/state"
)

func main() {
	// Define command-line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	createConfig := flag.Bool("init", false, "Create a default configuration file if it doesn't exist")
	serve := flag.Bool("serve", false, "Serve the dashboard API")
	repo := flag.String("repo", "", "Load a repository once and print a summary (format: owner/name)")
	clearCache := flag.Bool("clear-cache", false, "Drop the persisted snapshots of the selected repository")
	flag.Parse()

	// Create default configuration if requested
	if *createConfig {
		if err := config.CreateDefaultConfig(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create default configuration: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created default configuration at %s\n", *configPath)
		return
	}

	if !*serve && *repo == "" && !*clearCache {
		usage()
		return
	}

	if err := run(*configPath, *serve, *repo, *clearCache); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, serve bool, repo string, clearCache bool) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger, closer, err := logging.SetupLogger(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	database, err := db.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if err := database.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if clearCache {
		owner, name, ok, err := database.LoadSelection()
		if err != nil {
			return err
		}
		if ok {
			if err := database.DeleteSnapshots(owner, name); err != nil {
				return err
			}
			logger.Info("dropped snapshots", "repo", owner+"/"+name)
		}
		if !serve && repo == "" {
			return nil
		}
	}

	prefs, err := loadSettings(database, cfg)
	if err != nil {
		return err
	}

	var clientOpts []api.Option
	if cfg.GitHubBaseURL != "" {
		clientOpts = append(clientOpts, api.WithBaseURL(cfg.GitHubBaseURL))
	}
	manager := session.NewManager(database, prefs, logger, clientOpts...)
	defer manager.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// a configured token becomes the persisted credential
	if cfg.GitHubToken != "" {
		if err := database.SaveCredential(cfg.GitHubToken); err != nil {
			return err
		}
	}
	sess, err := manager.Resume(ctx)
	switch {
	case err == nil:
		logger.Info("logged in", "login", sess.Identity.Login)
	case errors.Is(err, session.ErrNoSession) && serve && repo == "":
		logger.Info("no credential configured, waiting for login")
	case errors.Is(err, session.ErrNoSession):
		return fmt.Errorf("a GitHub token is required; set github_token or %s", config.EnvGithubToken)
	default:
		return fmt.Errorf("failed to log in: %w", err)
	}

	if repo != "" {
		return printSummary(ctx, sess, repo)
	}

	if sess != nil && cfg.Repository != "" && sess.Aggregate.Status() == models.StatusIdle {
		owner, name, err := state.ParseRepositoryString(cfg.Repository)
		if err != nil {
			return err
		}
		if err := sess.Aggregate.SelectRepository(ctx, owner, name); err != nil {
			logger.Warn("failed to load configured repository", "repo", cfg.Repository, "err", err)
		}
	}

	if cfg.RefreshSchedule != "" {
		refresher, err := state.NewRefresher(cfg.RefreshSchedule, manager.Aggregate, logger)
		if err != nil {
			return err
		}
		refresher.Start()
		defer refresher.Stop()
	}

	return server.New(manager, prefs, logger).ListenAndServe(ctx, cfg.ListenAddr)
}

// loadSettings restores runtime settings, seeding them from the config file
// on first run
func loadSettings(database *db.DB, cfg *config.Config) (*settings.Store, error) {
	prefs := settings.New(database)
	if err := prefs.Load(); err != nil {
		return nil, err
	}

	if _, ok, err := database.LoadCacheTTLMinutes(); err != nil {
		return nil, err
	} else if !ok {
		if err := prefs.SetCacheTTL(cfg.CacheTTLMinutes); err != nil {
			return nil, err
		}
	}

	if cfg.ItemLimit != nil {
		limit, err := database.LoadItemLimit()
		if err != nil {
			return nil, err
		}
		if limit == nil {
			if err := prefs.SetItemLimit(cfg.ItemLimit); err != nil {
				return nil, err
			}
		}
	}
	return prefs, nil
}

func printSummary(ctx context.Context, sess *session.Session, repo string) error {
	owner, name, err := state.ParseRepositoryString(repo)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := sess.Aggregate.SelectRepository(ctx, owner, name); err != nil {
		return err
	}
	snap := sess.Aggregate.Snapshot()

	title := owner + "/" + name
	fmt.Println(title)
	fmt.Println(strings.Repeat("-", len(title)))
	if snap.Repository != nil && snap.Repository.Description != "" {
		fmt.Println(snap.Repository.Description)
		fmt.Println()
	}

	fmt.Printf("Releases:      %d\n", len(snap.Releases))
	for _, r := range snap.Releases {
		fmt.Printf("  %-20s %-12s %d issues\n", r.TagName, r.Phase, r.IssueCount)
	}

	fmt.Printf("Pull requests: %d\n", len(snap.PullRequests))
	counts := make(map[models.ReviewStatus]int)
	for _, pr := range snap.PullRequests {
		counts[pr.ReviewStatus]++
	}
	for _, status := range snap.ReviewStatuses {
		fmt.Printf("  %-20s %d\n", status, counts[status])
	}
	if snap.PullRequestsIncomplete {
		fmt.Println("  (review data still loading)")
	}

	fmt.Printf("Issues:        %d\n", len(snap.Issues))
	types := make(map[models.IssueType]int)
	for _, issue := range snap.Issues {
		types[issue.IssueType]++
	}
	for _, t := range []models.IssueType{
		models.IssueBug, models.IssueEnhancement, models.IssueDocumentation, models.IssueQuestion, models.IssueOther,
	} {
		if types[t] > 0 {
			fmt.Printf("  %-20s %d\n", t, types[t])
		}
	}

	fmt.Printf("Labels:        %d\n", len(snap.Labels))
	fmt.Printf("Milestones:    %d\n", len(snap.Milestones))
	fmt.Println()
	fmt.Printf("Loaded in %v\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func usage() {
	fmt.Println("repo-pulse - GitHub repository dashboard")
	fmt.Println("----------------------------------------")
	fmt.Println("Use -serve to serve the dashboard API")
	fmt.Println("Use -repo owner/name to load a repository once and print a summary")
	fmt.Println("Use -clear-cache to drop persisted snapshots of the selected repository")
	fmt.Println("Use -init to create a default configuration file")
	fmt.Println("Use -config path/to/config.yaml to specify a custom configuration file")
	fmt.Println()
	fmt.Printf("GitHub token can be provided via the %s environment variable\n", config.EnvGithubToken)
}
