package sqlite

import (
	"context"
	"encoding/json"

	"gorm.io/gorm"

	"github.com/iho/loanledger/internal/domain"
	"github.com/iho/loanledger/internal/usecase"
)

// AuditRepository implements usecase.AuditRepository.
type AuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// CreateTx inserts an audit log entry within the caller's transaction.
func (r *AuditRepository) CreateTx(ctx context.Context, tx usecase.Transaction, log *domain.AuditLog) error {
	db, err := gormTx(ctx, tx)
	if err != nil {
		return err
	}

	m := &auditModel{
		ID:           log.ID,
		Actor:        log.Actor,
		Action:       log.Action,
		ResourceType: log.ResourceType,
		ResourceID:   log.ResourceID,
		RequestID:    log.RequestID,
		Status:       log.Status,
		ErrorMessage: log.ErrorMessage,
		CreatedAt:    log.CreatedAt,
	}
	if log.BeforeState != nil {
		m.BeforeState = marshalJSON(log.BeforeState)
	}
	if log.AfterState != nil {
		m.AfterState = marshalJSON(log.AfterState)
	}

	return mapError(db.Create(m).Error, domain.ErrNotFound)
}

// List retrieves audit logs with filtering.
func (r *AuditRepository) List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error) {
	q := r.db.WithContext(ctx).Model(&auditModel{})
	if filter.Actor != "" {
		q = q.Where("actor = ?", filter.Actor)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if filter.ResourceType != "" {
		q = q.Where("resource_type = ?", filter.ResourceType)
	}
	if filter.ResourceID != "" {
		q = q.Where("resource_id = ?", filter.ResourceID)
	}
	if filter.StartDate != nil {
		q = q.Where("created_at >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		q = q.Where("created_at < ?", *filter.EndDate)
	}

	limit, offset := domain.ValidatePagination(filter.Limit, filter.Offset)

	var rows []auditModel
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, err
	}

	logs := make([]*domain.AuditLog, 0, len(rows))
	for _, m := range rows {
		log := &domain.AuditLog{
			ID:           m.ID,
			Actor:        m.Actor,
			Action:       m.Action,
			ResourceType: m.ResourceType,
			ResourceID:   m.ResourceID,
			RequestID:    m.RequestID,
			Status:       m.Status,
			ErrorMessage: m.ErrorMessage,
			CreatedAt:    m.CreatedAt,
		}
		if m.BeforeState != nil {
			_ = json.Unmarshal(m.BeforeState, &log.BeforeState)
		}
		if m.AfterState != nil {
			_ = json.Unmarshal(m.AfterState, &log.AfterState)
		}
		logs = append(logs, log)
	}
	return logs, nil
}
