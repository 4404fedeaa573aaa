package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "flowctl",
	Short: "Flowctl is a command line tool for interacting with the flowplane engine",
	Long: `flowctl is the command-line interface for the Flowplane event correlation engine.

Flowplane matches thrown events (messages, signals, errors) against process
instances waiting for them, and tracks failing background jobs so operators
can inspect and replay them.

Common workflows:

  Create a tenant and get an API key:
    flowctl tenant create --name "acme"

  Throw a message at waiting process instances:
    flowctl throw message --name "order-paid" --correlation "order-42"

  Broadcast a signal:
    flowctl throw signal --name "maintenance-window"

  Throw an error at a scope:
    flowctl throw error --code "PAYMENT_DECLINED" --activity 17

  List what process instances are waiting for:
    flowctl waits list

  Inspect failing jobs:
    flowctl jobs failing

  Replay a failing job:
    flowctl jobs replay <job-id>

Configuration:
  Set the API endpoint and credentials via environment variables or a config file:
    FLOWPLANE_API_URL    API endpoint (default: http://localhost:6171)
    FLOWPLANE_TOKEN      Tenant API key for authentication`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".flowctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".flowctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "FLOWPLANE_VARNAME"
	viper.SetEnvPrefix("FLOWPLANE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.flowctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6171", "Flowplane Engine URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "API key for authentication")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}
