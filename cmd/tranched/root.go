package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/chidi150c/tranchebot/internal/config"
	"github.com/chidi150c/tranchebot/internal/logging"
)

type app struct {
	envFile   string
	logLevel  string
	logFile   string
	rulesPath string
	log       zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{log: zerolog.Nop()}

	root := &cobra.Command{
		Use:           "tranched",
		Short:         "Tranche exit manager for CME micro futures",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg := logging.DefaultConfig()
			cfg.Level = a.logLevel
			cfg.FilePath = a.logFile
			a.log = logging.New(cfg)

			loaded, err := config.LoadEnvFile(a.envFile)
			if err != nil {
				return err
			}
			if loaded {
				a.log.Debug().Str("path", a.envFile).Msg("env file loaded")
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.envFile, "env", ".env", "dotenv file with broker credentials (existing env wins)")
	pf.StringVar(&a.logLevel, "log-level", "info", "debug, info, warn or error")
	pf.StringVar(&a.logFile, "log-file", "tranched.log", "rotating log file; empty disables it")
	pf.StringVar(&a.rulesPath, "rules", config.DefaultRulesPath, "tranche rules YAML")

	root.AddCommand(newRunCmd(a), newPreflightCmd(a))
	return root
}
