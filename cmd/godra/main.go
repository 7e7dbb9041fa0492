package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"godra/internal/app"
	"godra/internal/cag"
	"godra/internal/config"
)

var (
	version     = "0.1.0"
	cfgFile     string
	model       string
	mockMode    bool
	healthCheck bool
	query       string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "godra",
		Short: "LLM-assisted reverse engineering for Ghidra projects",
		Long: `Godra drives a local model through a Ghidra-backed tool loop to answer
questions about a loaded binary. Without flags it opens an interactive
session; with --query it answers once and exits.`,
		SilenceUsage: true,
		RunE:         runApp,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/godra/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "override the completion model")
	rootCmd.PersistentFlags().BoolVar(&mockMode, "mock", false, "use canned analysis data instead of a live Ghidra bridge")
	rootCmd.Flags().BoolVar(&healthCheck, "health-check", false, "probe the backends and exit")
	rootCmd.Flags().StringVarP(&query, "query", "q", "", "answer a single query and exit")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("godra version %s\n", version)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "sessions",
		Short: "List saved analysis sessions",
		RunE:  listSessions,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE:  initConfig,
	})

	// SIGINT in interactive mode is handled by the UI; in one-shot mode it
	// cancels the running query through this context.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads configuration and applies flag overrides.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.LoadFrom(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if model != "" {
		cfg.Ollama.Model = model
	}
	if mockMode {
		cfg.Ghidra.MockMode = true
	}
	cfg.Version = version
	return cfg, nil
}

func runApp(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if healthCheck {
		return a.HealthCheck(ctx, os.Stdout)
	}
	if query != "" {
		return a.RunOnce(ctx, query, os.Stdout)
	}
	return a.Run()
}

func initConfig(cmd *cobra.Command, args []string) error {
	path := config.GetConfigPath()
	if path == "" {
		return fmt.Errorf("could not determine config path")
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := config.DefaultConfig().Save(); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

func listSessions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := cag.NewStore(cfg.SessionDir())
	if err != nil {
		return err
	}
	ids, err := store.ListSessions()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("no saved sessions")
		return nil
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}
