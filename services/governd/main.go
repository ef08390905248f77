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
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/AleutianAI/AleutianGovern/pkg/logging"
	"github.com/AleutianAI/AleutianGovern/services/governd/routes"
	"github.com/AleutianAI/AleutianGovern/services/kernel/ledger"
	"github.com/AleutianAI/AleutianGovern/services/kernel/llm"
	"github.com/AleutianAI/AleutianGovern/services/kernel/observability"
	"github.com/AleutianAI/AleutianGovern/services/kernel/orchestration"
	"github.com/AleutianAI/AleutianGovern/services/kernel/storage/badger"
	"github.com/AleutianAI/AleutianGovern/services/kernel/taes"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "govern-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("governd-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func main() {
	port := os.Getenv("GOVERND_PORT")
	if port == "" {
		port = "12300"
	}
	baseDir := os.Getenv("GOVERN_BASE_DIR")
	if baseDir == "" {
		baseDir = "."
	}
	logsDir := os.Getenv("GOVERN_LOGS_DIR")
	if logsDir == "" {
		logsDir = filepath.Join(baseDir, "logs")
	}
	ledgerDir := os.Getenv("GOVERN_LEDGER_DIR")
	if ledgerDir == "" {
		ledgerDir = filepath.Join(logsDir, "ledger")
	}

	appLogger := logging.New(logging.Config{Level: logging.LevelInfo, Service: "governd"})
	defer appLogger.Close()
	slog.SetDefault(appLogger.Slog())

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	client, err := llm.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}

	allowHMAC := os.Getenv("GOVERN_ALLOW_HMAC") == "1"
	signer, err := ledger.NewSigner(ledgerDir, allowHMAC)
	if err != nil {
		log.Fatalf("FATAL: could not initialize the ledger signer: %v", err)
	}
	var ledgerOpts []ledger.Option
	if mirror, err := ledger.OpenMirror(filepath.Join(ledgerDir, "audit_mirror.db")); err != nil {
		slog.Warn("ledger mirror unavailable, continuing without it", "error", err)
	} else {
		defer mirror.Close()
		ledgerOpts = append(ledgerOpts, ledger.WithMirror(mirror))
	}
	auditLedger, err := ledger.Open(ledgerDir, signer, ledgerOpts...)
	if err != nil {
		log.Fatalf("FATAL: could not open the audit ledger: %v", err)
	}

	irdLog, err := taes.NewIRDLog(logsDir)
	if err != nil {
		log.Fatalf("FATAL: could not initialize the IRD log: %v", err)
	}

	snapshots, err := badger.Open(badger.DefaultConfig(filepath.Join(logsDir, "sessions.db")))
	if err != nil {
		slog.Warn("session snapshot store unavailable", "error", err)
		snapshots = nil
	} else {
		defer snapshots.Close()
	}

	kernel := &orchestration.Kernel{
		BaseDir: baseDir,
		LogsDir: logsDir,
		Client:  client,
		Ledger:  auditLedger,
		IRDLog:  irdLog,
		Metrics: observability.NewChainMetrics(),
	}
	if snapshots != nil {
		kernel.Snapshots = snapshots
	}

	maxParallel := int64(8)
	if raw := os.Getenv("GOVERN_MAX_SESSIONS"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			maxParallel = n
		}
	}
	manager := orchestration.NewSessionManager(kernel, maxParallel, 0)

	router := gin.Default()
	router.Use(otelgin.Middleware("governd-service"))
	routes.SetupRoutes(router, manager, filepath.Join(ledgerDir, "audit.jsonl"), logsDir)

	slog.Info("starting the governd server", "port", port, "base_dir", baseDir)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
