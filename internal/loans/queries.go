package loans

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/circulation-backend/pkg/db"
	"github.com/angelmondragon/circulation-backend/pkg/db/models"
	"github.com/angelmondragon/circulation-backend/pkg/pagination"
)

const (
	tableLoans     = "loans"
	colLoanGroupID = "loan_group_id"
	colMemberID    = "member_id"
	colChapterID   = "chapter_id"
	colStartDate   = "start_date"
	colDueDate     = "due_date"
	colReturnDate  = "return_date"
	aliasItemCount = "item_count"
	aliasBorrowCnt = "borrow_count"
)

// HistorySortColumns lists the columns a history page may be sorted by.
var HistorySortColumns = []string{colStartDate, colDueDate, colReturnDate}

// loanGroupRow is one aggregated loan group. Every row in a group shares its
// dates so grouping on them is lossless.
type loanGroupRow struct {
	LoanGroupID uuid.UUID  `gorm:"column:loan_group_id"`
	StartDate   time.Time  `gorm:"column:start_date"`
	DueDate     time.Time  `gorm:"column:due_date"`
	ReturnDate  *time.Time `gorm:"column:return_date"`
	ItemCount   int64      `gorm:"column:item_count"`
}

// Queries builds the read-side SQL with goqu and runs it through gorm.
type Queries struct {
	db *gorm.DB
}

func NewQueries(db *gorm.DB) *Queries {
	return &Queries{db: db}
}

func (q *Queries) builder() goqu.DialectWrapper {
	if dbpkg.Dialect(q.db) == dbpkg.DialectSQLite {
		return goqu.Dialect("sqlite3")
	}
	return goqu.Dialect("postgres")
}

// LoanGroups pages a member's loan groups and reports the total group count.
func (q *Queries) LoanGroups(ctx context.Context, memberID uuid.UUID, req pagination.PageRequest) ([]loanGroupRow, int64, error) {
	b := q.builder()
	memberFilter := goqu.C(colMemberID).Eq(memberID.String())

	order := goqu.I(req.Sort).Desc()
	if req.Direction == pagination.Asc {
		order = goqu.I(req.Sort).Asc()
	}
	listSQL, _, err := b.From(tableLoans).
		Select(
			goqu.C(colLoanGroupID),
			goqu.C(colStartDate),
			goqu.C(colDueDate),
			goqu.C(colReturnDate),
			goqu.COUNT(goqu.Star()).As(aliasItemCount),
		).
		Where(memberFilter).
		GroupBy(colLoanGroupID, colStartDate, colDueDate, colReturnDate).
		Order(order, goqu.I(colLoanGroupID).Asc()).
		Limit(uint(req.Size)).
		Offset(uint(req.Offset())).
		ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build history query: %w", err)
	}

	countSQL, _, err := b.From(tableLoans).
		Select(goqu.COUNT(goqu.DISTINCT(colLoanGroupID))).
		Where(memberFilter).
		ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build history count: %w", err)
	}

	var total int64
	if err := q.db.WithContext(ctx).Raw(countSQL).Scan(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []loanGroupRow
	if total == 0 {
		return rows, 0, nil
	}
	if err := q.db.WithContext(ctx).Raw(listSQL).Scan(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ItemsForGroups loads the items of the given loan groups keyed by group id.
func (q *Queries) ItemsForGroups(ctx context.Context, memberID uuid.UUID, groupIDs []uuid.UUID) (map[uuid.UUID][]LoanItem, error) {
	out := make(map[uuid.UUID][]LoanItem, len(groupIDs))
	if len(groupIDs) == 0 {
		return out, nil
	}
	var rows []models.Loan
	err := q.db.WithContext(ctx).
		Where("member_id = ? AND loan_group_id IN ?", memberID, groupIDs).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.LoanGroupID] = append(out[row.LoanGroupID], LoanItem{ItemID: row.ItemID, ChapterID: row.ChapterID})
	}
	return out, nil
}

// TopChapters counts loans per chapter that started within [from, to].
func (q *Queries) TopChapters(ctx context.Context, from, to time.Time, req pagination.PageRequest) ([]ChapterBorrowCount, int64, error) {
	b := q.builder()
	window := []exp.Expression{
		goqu.C(colStartDate).Gte(FormatDate(from)),
		goqu.C(colStartDate).Lt(FormatDate(addDays(to, 1))),
	}

	listSQL, _, err := b.From(tableLoans).
		Select(goqu.C(colChapterID), goqu.COUNT(goqu.Star()).As(aliasBorrowCnt)).
		Where(window...).
		GroupBy(colChapterID).
		Order(goqu.I(aliasBorrowCnt).Desc(), goqu.I(colChapterID).Asc()).
		Limit(uint(req.Size)).
		Offset(uint(req.Offset())).
		ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build top chapters query: %w", err)
	}
	countSQL, _, err := b.From(tableLoans).
		Select(goqu.COUNT(goqu.DISTINCT(colChapterID))).
		Where(window...).
		ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build top chapters count: %w", err)
	}

	var total int64
	if err := q.db.WithContext(ctx).Raw(countSQL).Scan(&total).Error; err != nil {
		return nil, 0, err
	}
	rows := []ChapterBorrowCount{}
	if total == 0 {
		return rows, 0, nil
	}
	var scanned []struct {
		ChapterID   uuid.UUID `gorm:"column:chapter_id"`
		BorrowCount int64     `gorm:"column:borrow_count"`
	}
	if err := q.db.WithContext(ctx).Raw(listSQL).Scan(&scanned).Error; err != nil {
		return nil, 0, err
	}
	for _, s := range scanned {
		rows = append(rows, ChapterBorrowCount{ChapterID: s.ChapterID, BorrowCount: s.BorrowCount})
	}
	return rows, total, nil
}
