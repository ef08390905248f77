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

	"github.com/AleutianAI/AleutianGovern/services/governd/handlers"
	"github.com/AleutianAI/AleutianGovern/services/kernel/orchestration"
)

// SetupRoutes wires the governd HTTP surface.
func SetupRoutes(router *gin.Engine, manager *orchestration.SessionManager, ledgerPath, logsDir string) {
	router.GET("/health", handlers.HealthCheck(ledgerPath, logsDir))
	router.GET("/domains", handlers.Domains())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.POST("/run", handlers.RunChain(manager))
		v1.GET("/domains", handlers.Domains())
		v1.DELETE("/sessions/:sessionId", handlers.CancelSession(manager))
	}
}
