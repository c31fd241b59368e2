package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "plantsimctl",
	Short: "plantsimctl is a CLI for controlling a running plantsim simulator",
	Long:  `Publishes control commands on the simulator's MQTT command topic and prints the status reply.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.plantsimctl.yaml)")
	rootCmd.PersistentFlags().String("broker", "tcp://localhost:1883", "MQTT broker URL")
	rootCmd.PersistentFlags().String("command-topic", "plantsim/control/command", "command topic")
	rootCmd.PersistentFlags().String("status-topic", "plantsim/control/status", "status reply topic")
	rootCmd.PersistentFlags().Duration("timeout", defaultTimeout, "how long to wait for a reply")
	viper.BindPFlag("broker", rootCmd.PersistentFlags().Lookup("broker"))
	viper.BindPFlag("command-topic", rootCmd.PersistentFlags().Lookup("command-topic"))
	viper.BindPFlag("status-topic", rootCmd.PersistentFlags().Lookup("status-topic"))
	viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, _ := os.UserHomeDir()
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".plantsimctl")
	}

	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	Execute()
}
