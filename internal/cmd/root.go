// Package cmd implements the colony command line interface.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/colonycore/colony/internal/config"
	"github.com/colonycore/colony/internal/errors"
)

// Exit codes. Scheduling failures get distinct codes so scripts can react
// without parsing stderr.
const (
	ExitOK                = 0
	ExitError             = 1
	ExitNoWorkerAvailable = 2
	ExitDependencyCycle   = 3
)

var rootCmd = &cobra.Command{
	Use:   "colony",
	Short: "Dependency-aware task coordinator",
	Long: `Colony schedules prioritized, interdependent tasks across a pool of
workers. A coordinator process owns the queue and the worker registry;
worker processes execute tasks delivered over a shared transport and
report results back.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExitCode maps an Execute error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, errors.ErrNoWorkerAvailable), errors.Is(err, errors.ErrNoMatch):
		return ExitNoWorkerAvailable
	case errors.Is(err, errors.ErrDependencyCycle):
		return ExitDependencyCycle
	default:
		return ExitError
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/colony/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("COLONY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	_ = viper.ReadInConfig()
}
