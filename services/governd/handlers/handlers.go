// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers provides HTTP request handlers for the governd
// chain API.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianGovern/services/kernel/datatypes"
	"github.com/AleutianAI/AleutianGovern/services/kernel/orchestration"
)

// Version is stamped by the build.
var Version = "dev"

// RunRequest is the POST /v1/run body.
type RunRequest struct {
	Objective string `json:"objective" binding:"required"`
	Domain    string `json:"domain"`
	SessionID string `json:"session_id"`
}

// HealthCheck reports liveness and mounted paths.
func HealthCheck(ledgerPath, logsDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":       "ok",
			"ledger_path":  ledgerPath,
			"reports_path": logsDir,
			"version":      Version,
		})
	}
}

// Domains returns the closed set of supported domain labels.
func Domains() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"domains": datatypes.Domains})
	}
}

// RunChain executes one session through the bounded session pool.
// The handler blocks for the duration of the chain; clients needing
// async behavior poll the session store instead.
func RunChain(manager *orchestration.SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Domain != "" && !datatypes.ValidDomain(req.Domain) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "unknown domain",
				"domains": datatypes.Domains,
			})
			return
		}
		result, err := manager.Run(c.Request.Context(), req.Objective, req.Domain, req.SessionID)
		if err != nil {
			status := http.StatusInternalServerError
			if result != nil {
				// Config errors still return the partial result.
				status = http.StatusUnprocessableEntity
			}
			c.JSON(status, gin.H{"error": err.Error(), "result": result})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// CancelSession requests cooperative cancellation of a running
// session.
func CancelSession(manager *orchestration.SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		if manager.Cancel(id) {
			c.JSON(http.StatusOK, gin.H{"cancelled": id})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "no running session " + id})
	}
}
