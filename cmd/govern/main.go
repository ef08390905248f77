// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// govern is the operator CLI for the governance kernel: run a chain,
// verify the ledger, print the config fingerprint, check IRD drift.
//
// Exit codes: 0 success, 2 config error, 3 role failure, 4 verifier
// integrity failure.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianGovern/cmd/govern/config"
	"github.com/AleutianAI/AleutianGovern/pkg/logging"
	"github.com/AleutianAI/AleutianGovern/services/kernel/fingerprint"
	"github.com/AleutianAI/AleutianGovern/services/kernel/ledger"
	"github.com/AleutianAI/AleutianGovern/services/kernel/llm"
	"github.com/AleutianAI/AleutianGovern/services/kernel/orchestration"
	"github.com/AleutianAI/AleutianGovern/services/kernel/taes"
	"github.com/AleutianAI/AleutianGovern/services/sentinel/verify"
)

// Exit codes per the operator contract.
const (
	exitOK        = 0
	exitConfig    = 2
	exitRole      = 3
	exitIntegrity = 4
)

func main() {
	logger := logging.New(logging.Config{Level: logging.LevelInfo, Service: "cli"})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	if err := config.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(exitConfig)
	}

	root := &cobra.Command{
		Use:   "govern",
		Short: "Governance kernel operator CLI",
	}
	root.AddCommand(runCmd(), verifyCmd(), fingerprintCmd(), driftCmd())
	if err := root.Execute(); err != nil {
		os.Exit(exitConfig)
	}
}

func runCmd() *cobra.Command {
	var domain, sessionID string
	cmd := &cobra.Command{
		Use:   "run [objective]",
		Short: "Execute one governance chain session",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.Global

			client, err := llm.NewFromEnv()
			if err != nil {
				fmt.Fprintf(os.Stderr, "config error: %v\n", err)
				os.Exit(exitConfig)
			}
			signer, err := ledger.NewSigner(cfg.Paths.LedgerDir, cfg.Ledger.AllowHMAC)
			if err != nil {
				fmt.Fprintf(os.Stderr, "config error: %v\n", err)
				os.Exit(exitConfig)
			}
			auditLedger, err := ledger.Open(cfg.Paths.LedgerDir, signer,
				ledger.WithMaxFileSize(cfg.Ledger.MaxFileSizeMB<<20))
			if err != nil {
				fmt.Fprintf(os.Stderr, "config error: %v\n", err)
				os.Exit(exitConfig)
			}
			irdLog, err := taes.NewIRDLog(cfg.Paths.LogsDir)
			if err != nil {
				fmt.Fprintf(os.Stderr, "config error: %v\n", err)
				os.Exit(exitConfig)
			}

			kernel := &orchestration.Kernel{
				BaseDir:     cfg.Paths.BaseDir,
				LogsDir:     cfg.Paths.LogsDir,
				Client:      client,
				Ledger:      auditLedger,
				IRDLog:      irdLog,
				RoleTimeout: time.Duration(cfg.Chain.RoleTimeoutSeconds) * time.Second,
			}
			manager := orchestration.NewSessionManager(kernel,
				cfg.Chain.MaxParallelSessions,
				time.Duration(cfg.Chain.SessionBudgetSeconds)*time.Second)

			result, err := manager.Run(context.Background(), args[0], domain, sessionID)
			if result != nil {
				out, _ := json.MarshalIndent(result, "", "  ")
				fmt.Println(string(out))
			}
			if err != nil {
				os.Exit(exitConfig)
			}
			if result.Failed() {
				os.Exit(exitRole)
			}
		},
	}
	cmd.Flags().StringVar(&domain, "domain", "", "domain label (marketing, technical, ...)")
	cmd.Flags().StringVar(&sessionID, "session", "", "explicit session id")
	return cmd
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify ledger integrity and signatures",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.Global
			verifier := verify.NewVerifier(cfg.Paths.LedgerDir)
			report := verifier.Walk()

			if store, err := verify.NewReportStore(cfg.Paths.ReportsDir); err == nil {
				if _, err := store.Write(report); err != nil {
					slog.Warn("could not persist report", "error", err)
				}
			}
			out, _ := json.MarshalIndent(report, "", "  ")
			fmt.Println(string(out))
			if !report.Verified {
				os.Exit(exitIntegrity)
			}
		},
	}
}

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the current config fingerprint",
		Run: func(cmd *cobra.Command, args []string) {
			hash, err := fingerprint.Compute(config.Global.Paths.BaseDir)
			if err != nil {
				fmt.Fprintf(os.Stderr, "config error: %v\n", err)
				os.Exit(exitConfig)
			}
			fmt.Println(hash)
		},
	}
}

func driftCmd() *cobra.Command {
	var threshold float64
	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Check recent IRD drift",
		Run: func(cmd *cobra.Command, args []string) {
			irdLog, err := taes.NewIRDLog(config.Global.Paths.LogsDir)
			if err != nil {
				fmt.Fprintf(os.Stderr, "config error: %v\n", err)
				os.Exit(exitConfig)
			}
			report := irdLog.CheckDrift(threshold)
			out, _ := json.MarshalIndent(report, "", "  ")
			fmt.Println(string(out))
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", 0.4, "average IRD alert threshold")
	return cmd
}
