package loans

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/angelmondragon/circulation-backend/pkg/db"
	"github.com/angelmondragon/circulation-backend/pkg/db/models"
)

// Repository is the write-side persistence the loan engine depends on.
// Implementations must honor the caller's transaction when built via WithTx.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockMember(ctx context.Context, memberID uuid.UUID) error
	HasOutstandingLoan(ctx context.Context, memberID uuid.UUID) (bool, error)
	HasAnyLoanHistory(ctx context.Context, memberID uuid.UUID) (bool, error)
	LatestReturnedLoanStartDate(ctx context.Context, memberID uuid.UUID) (*time.Time, error)
	FindOpenLoans(ctx context.Context, loanGroupID, memberID uuid.UUID) ([]models.Loan, error)
	InsertLoans(ctx context.Context, loans []models.Loan) error
	SetReturnDate(ctx context.Context, loanIDs []int64, returnDate time.Time) (int64, error)
	CountOverdueGroups(ctx context.Context, today time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a loans repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// LockMember serializes borrow/return work per member until the surrounding
// transaction ends. SQLite already serializes writers so it is a no-op there.
func (r *repository) LockMember(ctx context.Context, memberID uuid.UUID) error {
	if dbpkg.Dialect(r.db) != dbpkg.DialectPostgres {
		return nil
	}
	return r.db.WithContext(ctx).
		Exec("SELECT pg_advisory_xact_lock(hashtextextended(?::text, 0))", memberID.String()).
		Error
}

func (r *repository) HasOutstandingLoan(ctx context.Context, memberID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("member_id = ? AND return_date IS NULL", memberID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) HasAnyLoanHistory(ctx context.Context, memberID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("member_id = ?", memberID).
		Count(&count).Error
	return count > 0, err
}

// LatestReturnedLoanStartDate returns the start date of the returned loan that
// started most recently, or nil when nothing was returned yet.
func (r *repository) LatestReturnedLoanStartDate(ctx context.Context, memberID uuid.UUID) (*time.Time, error) {
	var rows []models.Loan
	err := r.db.WithContext(ctx).
		Where("member_id = ? AND return_date IS NOT NULL", memberID).
		Order("start_date DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	start := CivilDate(rows[0].StartDate)
	return &start, nil
}

func (r *repository) FindOpenLoans(ctx context.Context, loanGroupID, memberID uuid.UUID) ([]models.Loan, error) {
	query := r.db.WithContext(ctx).
		Where("loan_group_id = ? AND member_id = ? AND return_date IS NULL", loanGroupID, memberID).
		Order("id ASC")
	if dbpkg.Dialect(r.db) == dbpkg.DialectPostgres {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var rows []models.Loan
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) InsertLoans(ctx context.Context, loans []models.Loan) error {
	if len(loans) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Create(&loans).Error
	if dbpkg.IsUniqueViolation(err, "") {
		// ux_loans_group_item is the only unique index on loans
		return fmt.Errorf("%w: %v", ErrDuplicateItem, err)
	}
	return err
}

// SetReturnDate stamps the return date on rows that are still open and
// reports how many were updated.
func (r *repository) SetReturnDate(ctx context.Context, loanIDs []int64, returnDate time.Time) (int64, error) {
	if len(loanIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("id IN ? AND return_date IS NULL", loanIDs).
		Update("return_date", CivilDate(returnDate))
	return res.RowsAffected, res.Error
}

// CountOverdueGroups counts open loan groups whose due date is before today.
func (r *repository) CountOverdueGroups(ctx context.Context, today time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("return_date IS NULL AND due_date < ?", CivilDate(today)).
		Distinct("loan_group_id").
		Count(&count).Error
	return count, err
}
