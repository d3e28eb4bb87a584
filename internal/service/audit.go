package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/noah-isme/music-school-api/internal/models"
)

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type auditEntry struct {
	actorID    string
	action     string
	resource   string
	resourceID string
	oldValues  interface{}
	newValues  interface{}
	meta       models.RequestMeta
}

// recordAudit stores an audit entry. Failures are logged and never returned
// to the caller.
func recordAudit(ctx context.Context, w auditWriter, logger *zap.Logger, entry auditEntry) {
	if w == nil {
		return
	}
	log := &models.AuditLog{
		Action:    entry.action,
		Resource:  entry.resource,
		IPAddress: entry.meta.IP,
		UserAgent: entry.meta.UserAgent,
	}
	if entry.actorID != "" {
		actor := entry.actorID
		log.UserID = &actor
	}
	if entry.resourceID != "" {
		id := entry.resourceID
		log.ResourceID = &id
	}
	if entry.oldValues != nil {
		log.OldValues, _ = json.Marshal(entry.oldValues)
	}
	if entry.newValues != nil {
		log.NewValues, _ = json.Marshal(entry.newValues)
	}
	if err := w.CreateAuditLog(ctx, log); err != nil {
		logger.Warn("failed to record audit log", zap.String("action", entry.action), zap.String("resource", entry.resource), zap.Error(err))
	}
}
