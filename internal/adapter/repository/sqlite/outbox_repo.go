package sqlite

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/iho/loanledger/internal/domain"
	"github.com/iho/loanledger/internal/usecase"
)

// OutboxRepository implements usecase.OutboxRepository.
type OutboxRepository struct {
	db *gorm.DB
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Create creates a new outbox event within a transaction.
func (r *OutboxRepository) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	db, err := gormTx(ctx, tx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}

	return mapError(db.Create(&outboxModel{
		ID:            event.ID,
		AggregateID:   event.AggregateID,
		AggregateType: event.AggregateType,
		EventType:     event.EventType,
		Payload:       payload,
		CreatedAt:     event.CreatedAt,
		Published:     event.Published,
	}).Error, domain.ErrNotFound)
}

// GetUnpublished retrieves unpublished events, oldest first.
func (r *OutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	return r.find(r.db.WithContext(ctx).
		Where("published = ?", false).
		Order("created_at").
		Limit(limit))
}

// MarkPublished marks an event as published.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	return r.db.WithContext(ctx).Model(&outboxModel{}).
		Where("id = ?", id).
		Updates(map[string]any{"published": true, "published_at": publishedAt}).Error
}

// GetByAggregate retrieves events for a specific aggregate.
func (r *OutboxRepository) GetByAggregate(ctx context.Context, aggregateType, aggregateID string, limit, offset int) ([]*domain.OutboxEvent, error) {
	return r.find(r.db.WithContext(ctx).
		Where("aggregate_type = ? AND aggregate_id = ?", aggregateType, aggregateID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset))
}

// DeletePublished deletes published events older than the given time.
func (r *OutboxRepository) DeletePublished(ctx context.Context, before time.Time) error {
	return r.db.WithContext(ctx).
		Where("published = ? AND published_at < ?", true, before).
		Delete(&outboxModel{}).Error
}

func (r *OutboxRepository) find(q *gorm.DB) ([]*domain.OutboxEvent, error) {
	var rows []outboxModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	events := make([]*domain.OutboxEvent, 0, len(rows))
	for _, m := range rows {
		e := &domain.OutboxEvent{
			ID:            m.ID,
			AggregateID:   m.AggregateID,
			AggregateType: m.AggregateType,
			EventType:     m.EventType,
			CreatedAt:     m.CreatedAt,
			PublishedAt:   m.PublishedAt,
			Published:     m.Published,
		}
		if len(m.Payload) > 0 {
			_ = json.Unmarshal(m.Payload, &e.Payload)
		}
		events = append(events, e)
	}
	return events, nil
}
