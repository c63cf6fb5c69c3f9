package main

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rankwatch/internal/common"
)

// cliState carries configuration from the root command to subcommands.
type cliState struct {
	configFiles []string
	config      *common.Config
	logger      arbor.ILogger
}

// exitError ends the process with a specific code and no error log.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	state := &cliState{}

	defer func() {
		if r := recover(); r != nil {
			common.WriteCrashReport(state.logDir(), r, string(debug.Stack()))
			os.Exit(1)
		}
	}()

	if err := newRootCommand(state).Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		if state.logger != nil {
			state.logger.Error().Err(err).Msg("Command failed")
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCommand(state *cliState) *cobra.Command {
	root := &cobra.Command{
		Use:           "rankwatch",
		Short:         "Scrape ranking tables on a schedule and push summaries",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return state.load()
		},
	}

	root.PersistentFlags().StringArrayVarP(&state.configFiles, "config", "c", nil,
		"Configuration file path (can be specified multiple times, later files override earlier ones)")

	root.AddCommand(
		newRunCommand(state),
		newServeCommand(state),
		newWebhookCommand(state),
		newCheckDayCommand(state),
		newVersionCommand(),
	)
	return root
}

func (s *cliState) logDir() string {
	if s.config != nil && s.config.Logging.Dir != "" {
		return s.config.Logging.Dir
	}
	return "./logs"
}

// load runs the startup sequence: .env -> config files -> env -> validate -> logger.
func (s *cliState) load() error {
	if err := common.LoadDotEnv(".env"); err != nil {
		return err
	}

	// Auto-discover config file if not specified
	if len(s.configFiles) == 0 {
		for _, candidate := range []string{"rankwatch.toml", "deployments/rankwatch.toml"} {
			if _, err := os.Stat(candidate); err == nil {
				s.configFiles = append(s.configFiles, candidate)
				break
			}
		}
	}

	config, err := common.LoadFromFiles(s.configFiles...)
	if err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return err
	}

	s.config = config
	s.logger = common.InitLogger(config)

	s.logger.Debug().
		Strs("config_files", s.configFiles).
		Str("storage_type", config.Storage.Type).
		Str("notify_provider", config.Notify.Provider).
		Str("timezone", config.Timezone).
		Msg("Resolved configuration")
	return nil
}
