package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iklobato/lightapi/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		for _, r := range cfg.Resources {
			path := r.Path
			if path == "" {
				path = r.Descriptor().PathSegment()
			}
			fmt.Printf("resource %-16s -> %s\n", r.Name, path)
		}
		fmt.Printf("%s: ok (%d resources)\n", cfgFile, len(cfg.Resources))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
