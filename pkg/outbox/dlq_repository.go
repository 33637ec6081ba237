package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/circulation-backend/pkg/db/models"
	"github.com/angelmondragon/circulation-backend/pkg/enums"
)

// ErrDLQEntryNotFound is returned by Requeue for an unknown entry.
var ErrDLQEntryNotFound = errors.New("dlq entry not found")

// DLQRepository stores loan events the publisher stopped retrying.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if !entry.ErrorReason.IsValid() {
		return fmt.Errorf("invalid dlq reason %q", entry.ErrorReason)
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.FailedAt.IsZero() {
		entry.FailedAt = time.Now().UTC()
	}
	if entry.ErrorMessage != nil {
		msg := truncateError(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// DLQFilter narrows List. Zero values match everything.
type DLQFilter struct {
	Reason      enums.OutboxDLQErrorReason
	AggregateID uuid.UUID
	Limit       int
}

// List returns the newest entries first.
func (r *DLQRepository) List(ctx context.Context, filter DLQFilter) ([]models.OutboxDLQ, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := r.db.WithContext(ctx).Order("failed_at DESC").Limit(limit)
	if filter.Reason != "" {
		query = query.Where("error_reason = ?", filter.Reason)
	}
	if filter.AggregateID != uuid.Nil {
		query = query.Where("aggregate_id = ?", filter.AggregateID)
	}
	var rows []models.OutboxDLQ
	err := query.Find(&rows).Error
	return rows, err
}

// Requeue moves a DLQ entry back into outbox_events as a new pending row and
// drops the entry. The returned row is the one the publisher will pick up.
func (r *DLQRepository) Requeue(ctx context.Context, id uuid.UUID) (models.OutboxEvent, error) {
	var requeued models.OutboxEvent
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.OutboxDLQ
		if err := tx.Where("id = ?", id).First(&entry).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDLQEntryNotFound
			}
			return err
		}
		requeued = entry.Replay()
		requeued.CreatedAt = time.Now().UTC()
		if err := tx.Create(&requeued).Error; err != nil {
			return fmt.Errorf("insert outbox row: %w", err)
		}
		return tx.Delete(&models.OutboxDLQ{}, "id = ?", entry.ID).Error
	})
	if err != nil {
		return models.OutboxEvent{}, err
	}
	return requeued, nil
}

// DeleteFailedBefore purges at most limit entries that failed before cutoff.
func (r *DLQRepository) DeleteFailedBefore(tx *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	if tx == nil {
		return 0, errors.New("transaction required")
	}
	return deleteBatch(tx, &models.OutboxDLQ{}, "failed_at < ?", cutoff, limit)
}
