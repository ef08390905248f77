// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianGovern/services/kernel/observability"
	"github.com/AleutianAI/AleutianGovern/services/sentinel/handlers"
	"github.com/AleutianAI/AleutianGovern/services/sentinel/verify"
)

// SetupRoutes wires the sentinel's HTTP surface.
func SetupRoutes(router *gin.Engine, cached *verify.CachedVerifier,
	reports *verify.ReportStore, metrics *observability.VerifierMetrics) {

	router.GET("/health", handlers.HealthCheck(cached.Verifier(), reports))
	router.GET("/verify", handlers.Verify(cached, reports, metrics))
	router.GET("/reports", handlers.Reports(reports))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
