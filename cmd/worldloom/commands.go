// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/worldloom/pkg/logging"
)

// --- Global Command Variables ---
var (
	configPath string
	config     Config

	rootCmd = &cobra.Command{
		Use:   "worldloom",
		Short: "A coordination core for multi-agent living game worlds",
		Long: `Worldloom runs the shared world context, the agent message hub,
and the story consistency engine that keep a set of cooperating
game agents coherent.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			var err error
			config, err = LoadConfig(configPath)
			if err != nil {
				log.Fatalf("Error loading configuration: %v", err)
			}

			logger := logging.New(logging.Config{
				Level:   parseLogLevel(config.Log.Level),
				LogDir:  config.Log.Dir,
				Service: "worldloom",
				JSON:    config.Log.JSON,
			})
			logger.Install()
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the worldloom HTTP gateway",
		Run:   runServe, // Defined in cmd_serve.go
	}

	demoCmd = &cobra.Command{
		Use:   "demo",
		Short: "Run a short in-process coordination walkthrough",
		Run:   runDemo, // Defined in cmd_demo.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "worldloom.yaml", "Path to the YAML configuration file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(demoCmd)
}

func parseLogLevel(level string) logging.Level {
	switch level {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
