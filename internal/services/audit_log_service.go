package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	domain "github.com/shopforge/fulfillment/internal/domain"
	"github.com/shopforge/fulfillment/internal/repositories"
)

// Audit actions recorded for operator mutations. Order transitions carry a
// status diff, refund approvals carry the credited amount.
const (
	AuditActionOrderConfirmed      = "order.confirmed"
	AuditActionOrderShipped        = "order.shipped"
	AuditActionOrderCancelled      = "order.cancelled"
	AuditActionReturnApproved      = "order.return.approved"
	AuditActionReturnRejected      = "order.return.rejected"
	AuditActionDiscountCreated     = "discount.created"
	AuditActionDiscountUpdated     = "discount.updated"
	AuditActionDiscountDeactivated = "discount.deactivated"
)

const (
	defaultAuditSeverity = "info"
	defaultActorType     = "staff"
	hashPrefix           = "sha256:"
)

// AuditLogger defines the logging contract used by the audit writer service.
type AuditLogger interface {
	Warnf(format string, args ...any)
}

type auditLogService struct {
	repo     repositories.AuditLogRepository
	clock    func() time.Time
	logger   AuditLogger
	hashSalt string
}

// AuditLogServiceDeps bundles constructor inputs for the audit writer service.
type AuditLogServiceDeps struct {
	Repository repositories.AuditLogRepository
	Clock      func() time.Time
	Logger     AuditLogger
	HashSalt   string
}

// NewAuditLogService creates an audit log writer backed by the supplied repository.
func NewAuditLogService(deps AuditLogServiceDeps) (AuditLogService, error) {
	if deps.Repository == nil {
		return nil, errors.New("audit log service: repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = noopAuditLogger{}
	}

	return &auditLogService{
		repo:     deps.Repository,
		clock:    func() time.Time { return clock().UTC() },
		logger:   logger,
		hashSalt: deps.HashSalt,
	}, nil
}

// Record persists an audit log entry. Append failures are logged but never
// bubble up: the trail must not interrupt the mutation it describes.
func (s *auditLogService) Record(ctx context.Context, record AuditLogRecord) {
	entry := s.buildEntry(record)
	if err := s.repo.Append(ctx, entry); err != nil {
		s.logger.Warnf("audit log append failed for %s on %s: %v", entry.Action, entry.TargetRef, err)
	}
}

// List delegates to the repository to retrieve paginated audit logs.
func (s *auditLogService) List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error) {
	filter.TargetRef = strings.TrimSpace(filter.TargetRef)
	filter.Actor = strings.TrimSpace(filter.Actor)
	filter.ActorType = strings.TrimSpace(filter.ActorType)
	filter.Action = strings.TrimSpace(filter.Action)
	return s.repo.List(ctx, filter)
}

func (s *auditLogService) buildEntry(record AuditLogRecord) domain.AuditLogEntry {
	occurred := record.OccurredAt
	if occurred.IsZero() {
		occurred = s.clock()
	} else {
		occurred = occurred.UTC()
	}

	entry := domain.AuditLogEntry{
		Actor:     clipText(record.Actor, 160),
		ActorType: normalizeActorType(record.ActorType, record.Actor),
		Action:    clipText(record.Action, 120),
		TargetRef: clipText(record.TargetRef, 200),
		Severity:  normalizeSeverity(record.Severity),
		RequestID: clipText(record.RequestID, 128),
		UserAgent: clipText(record.UserAgent, 256),
		CreatedAt: occurred,
	}

	meta := make(map[string]any, len(record.Metadata)+2)
	for key, value := range record.Metadata {
		key = clipText(key, 80)
		if key == "" {
			continue
		}
		if str, ok := value.(string); ok {
			value = clipText(str, 512)
		}
		meta[key] = value
	}
	if reason := strings.TrimSpace(record.Reason); reason != "" {
		meta["reason"] = clipText(reason, 512)
	}
	if record.Amount != 0 {
		meta["amount"] = record.Amount
	}
	if len(meta) > 0 {
		entry.Metadata = meta
	}

	if record.FromStatus != "" || record.ToStatus != "" {
		entry.Diff = map[string]any{
			"status": map[string]any{
				"before": record.FromStatus,
				"after":  record.ToStatus,
			},
		}
	}

	if ip := strings.TrimSpace(record.IPAddress); ip != "" {
		entry.IPHash = hashPrefix + s.hashString(ip)
	}

	return entry
}

func (s *auditLogService) hashString(value string) string {
	sum := sha256.Sum256([]byte(s.hashSalt + strings.TrimSpace(value)))
	return hex.EncodeToString(sum[:])
}

type noopAuditLogger struct{}

func (noopAuditLogger) Warnf(string, ...any) {}

func normalizeActorType(actorType string, actor string) string {
	switch strings.ToLower(strings.TrimSpace(actorType)) {
	case "user":
		return "user"
	case "staff":
		return "staff"
	case "system":
		return "system"
	}
	actor = strings.ToLower(strings.TrimSpace(actor))
	if actor == "system" || strings.HasPrefix(actor, "system:") {
		return "system"
	}
	if strings.HasPrefix(actor, "user:") || strings.HasPrefix(actor, "/users/") {
		return "user"
	}
	return defaultActorType
}

func normalizeSeverity(severity string) string {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "warn", "warning":
		return "warn"
	case "error":
		return "error"
	default:
		return defaultAuditSeverity
	}
}

// clipText trims whitespace, strips control characters, and bounds length.
func clipText(input string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}
	var builder strings.Builder
	for _, r := range input {
		if r < 32 {
			continue
		}
		builder.WriteRune(r)
		if builder.Len() >= limit {
			break
		}
	}
	return strings.TrimSpace(builder.String())
}
