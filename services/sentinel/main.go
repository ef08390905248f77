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
	"log"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianGovern/pkg/logging"
	"github.com/AleutianAI/AleutianGovern/services/kernel/observability"
	"github.com/AleutianAI/AleutianGovern/services/sentinel/routes"
	"github.com/AleutianAI/AleutianGovern/services/sentinel/verify"
)

func main() {
	port := os.Getenv("SENTINEL_PORT")
	if port == "" {
		port = "12310"
	}
	ledgerDir := os.Getenv("GOVERN_LEDGER_DIR")
	if ledgerDir == "" {
		ledgerDir = "logs/ledger"
	}
	reportsDir := os.Getenv("GOVERN_REPORTS_DIR")
	if reportsDir == "" {
		reportsDir = "logs/reports"
	}

	logger := logging.New(logging.Config{Level: logging.LevelInfo, Service: "sentinel"})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	verifier := verify.NewVerifier(ledgerDir)
	slog.Info("sentinel starting", "verifier", verifier.String())

	reports, err := verify.NewReportStore(reportsDir)
	if err != nil {
		log.Fatalf("FATAL: could not initialize the report store: %v", err)
	}
	cached := verify.NewCachedVerifier(context.Background(), verifier)
	metrics := observability.NewVerifierMetrics()

	router := gin.Default()
	router.Use(otelgin.Middleware("sentinel-service"))
	routes.SetupRoutes(router, cached, reports, metrics)

	slog.Info("starting the sentinel server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
