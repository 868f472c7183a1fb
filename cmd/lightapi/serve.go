package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/iklobato/lightapi"
	"github.com/iklobato/lightapi/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the LightAPI server.

The server will:
  - Load resource declarations from lightapi.yaml (or --config)
  - Open the backing store selected by DATABASE_URL (in-memory if unset)
  - Generate CRUD endpoints for every declared resource

Environment variables:
  DATABASE_URL             - Connection string (postgres://, sqlite://, file path)
  LIGHTAPI_SERVER_HOST     - Bind host (default: 0.0.0.0)
  LIGHTAPI_SERVER_PORT     - Bind port (default: 8000)
  LIGHTAPI_AUTH_ENABLED    - Require bearer tokens on every route
  LIGHTAPI_JWT_SECRET      - Token signing secret (random per run if unset)
  LIGHTAPI_LOG_LEVEL       - debug, info, warn, error
  LIGHTAPI_LOG_FORMAT      - json or console

Examples:
  lightapi serve
  lightapi serve --config /etc/lightapi/config.yaml
  DATABASE_URL=postgres://localhost/app lightapi serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	var cfg *config.Config
	if _, err := os.Stat(cfgFile); err == nil {
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
	} else {
		cfg = config.FromEnv()
	}

	app, err := lightapi.New(cfg)
	if err != nil {
		return err
	}
	return app.Run()
}
