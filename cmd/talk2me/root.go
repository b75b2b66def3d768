package main

import (
	"encoding/json"
	"fmt"
	"io"

	"talk2me/internal/config"
	"talk2me/internal/session"

	"github.com/spf13/cobra"
)

// app is the state shared by every subcommand of one invocation.
type app struct {
	out        io.Writer
	jsonOutput bool

	apiURL      string
	sessionFile string
	redisURL    string

	cfg          *config.ClientConfig
	manager      *session.Manager
	closeStorage func() error
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	rootCmd := &cobra.Command{
		Use:   "talk2me",
		Short: "Command-line client for the talk2me auth API",
		Long: `talk2me signs in against the talk2me auth API and keeps the session
between invocations, in a local JSON file or in Redis when
TALK2ME_REDIS_URL is set.`,
		Version:           fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closeStorage != nil {
				return a.closeStorage()
			}
			return nil
		},
	}
	rootCmd.SetOut(out)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.apiURL, "api-url", "", "API base URL (overrides TALK2ME_API_URL)")
	flags.StringVar(&a.sessionFile, "session-file", "", "session file (overrides TALK2ME_SESSION_FILE)")
	flags.StringVar(&a.redisURL, "redis-url", "", "keep the session in Redis (overrides TALK2ME_REDIS_URL)")
	flags.BoolVar(&a.jsonOutput, "json", false, "print JSON instead of text")

	rootCmd.AddCommand(
		loginCmd(a),
		registerCmd(a),
		refreshCmd(a),
		verifyCmd(a),
		logoutCmd(a),
		statusCmd(a),
		whoamiCmd(a),
		corsCheckCmd(a),
	)

	return rootCmd
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	if a.apiURL != "" {
		cfg.APIURL = a.apiURL
	}
	if a.sessionFile != "" {
		cfg.SessionFile = a.sessionFile
	}
	if a.redisURL != "" {
		cfg.RedisURL = a.redisURL
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	storage, closeFn, err := session.OpenStorage(cmd.Context(), cfg.RedisURL, func() (session.Storage, error) {
		return session.NewFileStorage(cfg.SessionFile)
	})
	if err != nil {
		return fmt.Errorf("failed to open session storage: %w", err)
	}
	a.closeStorage = closeFn

	a.manager = session.NewManager(session.Config{
		BaseURL:         cfg.APIURL,
		Storage:         storage,
		RefreshInterval: cfg.RefreshInterval,
		HTTPTimeout:     cfg.HTTPTimeout,
	})
	return nil
}

// print writes v as JSON in --json mode and text otherwise.
func (a *app) print(v any, text string) error {
	if a.jsonOutput {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(a.out, text)
	return err
}
