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
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the YAML configuration for the worldloom daemon.
type Config struct {
	Server struct {
		// Port the HTTP gateway listens on.
		Port int `yaml:"port"`
	} `yaml:"server"`

	Log struct {
		// Level is one of debug, info, warn, error.
		Level string `yaml:"level"`
		// Dir enables file logging when set.
		Dir string `yaml:"dir"`
		// JSON switches stderr output to JSON.
		JSON bool `yaml:"json"`
	} `yaml:"log"`

	Context struct {
		// HistoryLimit caps retained versions and change log entries.
		// <= 0 retains everything.
		HistoryLimit int `yaml:"history_limit"`
	} `yaml:"context"`

	Hub struct {
		QueueLimit                   int `yaml:"queue_limit"`
		CollaborationDeadlineMinutes int `yaml:"collaboration_deadline_minutes"`
		BreakerThreshold             int `yaml:"breaker_threshold"`
		BreakerCooldownSeconds       int `yaml:"breaker_cooldown_seconds"`
	} `yaml:"hub"`

	Journal struct {
		// Enabled turns on the BadgerDB change log journal.
		Enabled    bool   `yaml:"enabled"`
		Path       string `yaml:"path"`
		SyncWrites bool   `yaml:"sync_writes"`
	} `yaml:"journal"`

	Rules struct {
		// Path points at a YAML rule file for the validator.
		Path string `yaml:"path"`
		// Watch reloads the rule file on change.
		Watch bool `yaml:"watch"`
	} `yaml:"rules"`

	Reaper struct {
		// Enabled turns on collaboration deadline enforcement.
		Enabled         bool `yaml:"enabled"`
		IntervalSeconds int  `yaml:"interval_seconds"`
	} `yaml:"reaper"`
}

// DefaultConfig returns the daemon defaults: port 8090, info logging,
// unbounded retention, no journal, no reaper.
func DefaultConfig() Config {
	var c Config
	c.Server.Port = 8090
	c.Log.Level = "info"
	c.Hub.CollaborationDeadlineMinutes = 5
	c.Hub.BreakerThreshold = 5
	c.Hub.BreakerCooldownSeconds = 60
	c.Journal.Path = "worldloom.journal"
	c.Journal.SyncWrites = true
	c.Reaper.IntervalSeconds = 30
	return c
}

// LoadConfig reads a YAML config file over the defaults. A missing file
// is not an error; the defaults stand.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return config, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &config); err != nil {
		return config, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return config, nil
}

func (c Config) collaborationDeadline() time.Duration {
	return time.Duration(c.Hub.CollaborationDeadlineMinutes) * time.Minute
}

func (c Config) breakerCooldown() time.Duration {
	return time.Duration(c.Hub.BreakerCooldownSeconds) * time.Second
}

func (c Config) reaperInterval() time.Duration {
	return time.Duration(c.Reaper.IntervalSeconds) * time.Second
}
