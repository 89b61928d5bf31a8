package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Kocoro-lab/snippets/internal/metrics"
)

const insertAuditLog = `
	INSERT INTO audit_logs (
		id, user_id, action, entity_type, entity_id,
		ip_address, user_agent, request_id,
		details, created_at
	) VALUES (
		:id, :user_id, :action, :entity_type, :entity_id,
		:ip_address, :user_agent, :request_id,
		:details, :created_at
	)`

func (a *AuditLog) fillDefaults() {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
}

// SaveAuditLog saves an audit log entry
func (c *Client) SaveAuditLog(ctx context.Context, audit *AuditLog) error {
	audit.fillDefaults()

	if _, err := c.db.NamedExecContext(ctx, insertAuditLog, audit); err != nil {
		metrics.AuditWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to save audit log: %w", err)
	}

	metrics.AuditWrites.WithLabelValues("success").Inc()
	return nil
}

// BatchSaveAuditLogs saves multiple audit log entries in one transaction
func (c *Client) BatchSaveAuditLogs(ctx context.Context, logs []*AuditLog) error {
	if len(logs) == 0 {
		return nil
	}

	err := c.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		for _, audit := range logs {
			audit.fillDefaults()
			if _, err := tx.NamedExecContext(ctx, insertAuditLog, audit); err != nil {
				return fmt.Errorf("failed to insert audit log %s: %w", audit.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		metrics.AuditWrites.WithLabelValues("error").Add(float64(len(logs)))
		return fmt.Errorf("failed to batch save audit logs: %w", err)
	}

	metrics.AuditWrites.WithLabelValues("success").Add(float64(len(logs)))
	return nil
}

// ListAuditLogs returns audit entries, newest first
func (c *Client) ListAuditLogs(ctx context.Context, filter *AuditLogFilter) ([]AuditLog, error) {
	var (
		conditions []string
		args       []interface{}
	)

	limit := 100
	if filter != nil {
		if filter.UserID != nil {
			conditions = append(conditions, "user_id = ?")
			args = append(args, *filter.UserID)
		}
		if filter.Action != nil {
			conditions = append(conditions, "action = ?")
			args = append(args, *filter.Action)
		}
		if filter.Limit > 0 {
			limit = filter.Limit
		}
	}

	query := `
		SELECT id, user_id, action, entity_type, entity_id,
			ip_address, user_agent, request_id, details, created_at
		FROM audit_logs`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	var logs []AuditLog
	if err := c.db.SelectContext(ctx, &logs, c.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, nil
}
