package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

// writeAudit records a change. Call it with the same tx as the audited write
// so the audit row commits or rolls back with it.
func writeAudit(ctx context.Context, q querier, userID int, entity string, entityID any, action string, details map[string]any) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	_, err = q.Exec(ctx,
		`INSERT INTO audit_logs (user_id, entity, entity_id, action, details)
		 VALUES (@userID, @entity, @entityID, @action, @details::jsonb)`,
		pgx.NamedArgs{
			"userID": userID, "entity": entity, "entityID": fmt.Sprint(entityID),
			"action": action, "details": string(payload),
		})
	if err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// getAuditLog returns the newest audit rows for the authenticated user.
// GET /api/audit?entity=food&limit=50.
func (h *Handler) getAuditLog(c *gin.Context) {
	userID := c.GetInt("user_id")

	limit := defaultAuditLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxAuditLimit {
			apiError(c, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxAuditLimit))
			return
		}
		limit = n
	}

	rows, err := queryMany[auditLog](c, h.db,
		`SELECT * FROM audit_logs
		 WHERE user_id = @userID AND (@entity = '' OR entity = @entity)
		 ORDER BY created_at DESC, id DESC
		 LIMIT @limit`,
		pgx.NamedArgs{"userID": userID, "entity": c.Query("entity"), "limit": limit})
	if err != nil {
		apiError(c, http.StatusInternalServerError, "failed to fetch audit log")
		return
	}
	if rows == nil {
		rows = []auditLog{}
	}
	c.JSON(http.StatusOK, rows)
}
