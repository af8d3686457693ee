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
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/worldloom/services/consistency"
	"github.com/AleutianAI/worldloom/services/gateway/routes"
	"github.com/AleutianAI/worldloom/services/hub"
	"github.com/AleutianAI/worldloom/services/journal"
	"github.com/AleutianAI/worldloom/services/observability"
	"github.com/AleutianAI/worldloom/services/session"
	"github.com/AleutianAI/worldloom/services/worldstate"
)

func runServe(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	observability.InitMetrics()

	storeConfig := worldstate.StoreConfig{HistoryLimit: config.Context.HistoryLimit}

	var changeLog *journal.Journal
	if config.Journal.Enabled {
		var err error
		changeLog, err = journal.Open(journal.Config{
			Path:       config.Journal.Path,
			SyncWrites: config.Journal.SyncWrites,
		})
		if err != nil {
			log.Fatalf("Failed to open change log journal: %v", err)
		}
		defer changeLog.Close()

		if _, last, err := changeLog.Rebuild(); err != nil {
			slog.Warn("journal replay failed, continuing with empty context", "error", err)
		} else if last > 0 {
			slog.Info("journal holds prior history", "last_version", last)
		}
		storeConfig.Sink = changeLog
	}

	store := worldstate.NewStoreWithConfig(storeConfig)
	agentHub := hub.NewHubWithConfig(store, hub.HubConfig{
		QueueLimit:            config.Hub.QueueLimit,
		CollaborationDeadline: config.collaborationDeadline(),
		BreakerThreshold:      config.Hub.BreakerThreshold,
		BreakerCooldown:       config.breakerCooldown(),
	})
	validator := consistency.NewValidator(store)
	resolver := consistency.NewResolver()
	sess := session.New(store, agentHub, validator, resolver)

	router := gin.Default()
	router.Use(otelgin.Middleware("worldloom-gateway"))
	routes.SetupRoutes(router, store, agentHub, validator, resolver, sess)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Server.Port),
		Handler: router,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		slog.Info("starting worldloom gateway", "port", config.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if config.Rules.Path != "" {
		if config.Rules.Watch {
			group.Go(func() error {
				err := consistency.WatchRuleFile(groupCtx, config.Rules.Path, validator)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		} else if err := consistency.ApplyRuleFile(config.Rules.Path, validator); err != nil {
			log.Fatalf("Failed to load rule file: %v", err)
		}
	}

	if config.Reaper.Enabled {
		reaper := hub.NewReaper(agentHub, config.reaperInterval())
		group.Go(func() error {
			err := reaper.Run(groupCtx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := group.Wait(); err != nil {
		log.Fatalf("Gateway exited with error: %v", err)
	}
	slog.Info("worldloom gateway stopped")
}
