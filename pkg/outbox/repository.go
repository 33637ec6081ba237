package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/angelmondragon/circulation-backend/pkg/db"
	"github.com/angelmondragon/circulation-backend/pkg/db/models"
)

const maxLastErrorLen = 1024

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the handle used to open publisher transactions.
func (r *Repository) DB() *gorm.DB {
	return r.db
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(&event).Error
}

// FetchUnpublishedForPublish claims the oldest pending rows. On postgres the
// rows stay locked until tx ends so concurrent publishers skip them.
func (r *Repository) FetchUnpublishedForPublish(tx *gorm.DB, limit int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if limit <= 0 {
		limit = 50
	}
	query := tx.Model(&models.OutboxEvent{}).
		Where("published_at IS NULL").
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit)
	if dbpkg.Dialect(tx) == dbpkg.DialectPostgres {
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	var rows []models.OutboxEvent
	err := query.Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"published_at": time.Now().UTC(),
			"last_error":   nil,
		}).Error
}

func (r *Repository) MarkFailedTx(tx *gorm.DB, id uuid.UUID, cause error) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	msg := truncateError(errorString(cause))
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    msg,
			"attempt_count": gorm.Expr("attempt_count + 1"),
		}).Error
}

// MarkTerminalTx retires a row that was moved to the DLQ. published_at is set
// so the row is no longer claimed.
func (r *Repository) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, cause error) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	msg := truncateError(errorString(cause))
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"published_at":  time.Now().UTC(),
			"last_error":    msg,
			"attempt_count": gorm.Expr("attempt_count + 1"),
		}).Error
}

// DeletePublishedBefore purges at most limit published rows older than cutoff.
// A non-positive limit removes every matching row.
func (r *Repository) DeletePublishedBefore(tx *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	if tx == nil {
		return 0, errors.New("transaction required")
	}
	return deleteBatch(tx, &models.OutboxEvent{}, "published_at IS NOT NULL AND published_at < ?", cutoff, limit)
}

func deleteBatch(tx *gorm.DB, model any, cond string, cutoff time.Time, limit int) (int64, error) {
	if limit <= 0 {
		res := tx.Where(cond, cutoff).Delete(model)
		return res.RowsAffected, res.Error
	}
	batch := tx.Session(&gorm.Session{NewDB: true}).Model(model).Select("id").Where(cond, cutoff).Limit(limit)
	res := tx.Where("id IN (?)", batch).Delete(model)
	return res.RowsAffected, res.Error
}

// CountPending reports how many rows are waiting for publication.
func (r *Repository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("published_at IS NULL").
		Count(&count).Error
	return count, err
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func truncateError(message string) string {
	if len(message) <= maxLastErrorLen {
		return message
	}
	return message[:maxLastErrorLen]
}
