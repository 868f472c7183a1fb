package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "lightapi",
	Short: "Serve a RESTful API generated from declared data models",
	Long: `LightAPI derives create/read/update/delete/list endpoints from resource
declarations - no per-route boilerplate. Declare resources in a YAML file and
serve them, or embed the library and register models and custom handlers in Go.

Quick start:
  lightapi serve      # Serve resources declared in lightapi.yaml
  lightapi validate   # Check the configuration without serving`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "lightapi.yaml", "config file path")
}
