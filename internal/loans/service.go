package loans

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/circulation-backend/pkg/db/models"
	"github.com/angelmondragon/circulation-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/circulation-backend/pkg/errors"
	"github.com/angelmondragon/circulation-backend/pkg/logger"
	"github.com/angelmondragon/circulation-backend/pkg/metrics"
	"github.com/angelmondragon/circulation-backend/pkg/outbox"
	"github.com/angelmondragon/circulation-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type readModel interface {
	LoanGroups(ctx context.Context, memberID uuid.UUID, req pagination.PageRequest) ([]loanGroupRow, int64, error)
	ItemsForGroups(ctx context.Context, memberID uuid.UUID, groupIDs []uuid.UUID) (map[uuid.UUID][]LoanItem, error)
	TopChapters(ctx context.Context, from, to time.Time, req pagination.PageRequest) ([]ChapterBorrowCount, int64, error)
}

// Service runs loan transitions and the member-facing read models.
type Service interface {
	Borrow(ctx context.Context, req BorrowRequest) (*BorrowConfirmation, error)
	Return(ctx context.Context, req ReturnRequest) (*ReturnConfirmation, error)
	History(ctx context.Context, memberID uuid.UUID, req pagination.PageRequest) (*HistoryPage, error)
	TopChapters(ctx context.Context, period enums.BorrowPeriod, req pagination.PageRequest) (*TopChaptersPage, error)
}

// Policy holds the lending constants.
type Policy struct {
	PeriodDays    int
	UnitFine      decimal.Decimal
	SourceService string
	Location      *time.Location
	Calendar      CalendarRule
}

// ServiceParams wires a Service.
type ServiceParams struct {
	Tx      txRunner
	Repo    Repository
	Reads   readModel
	Outbox  outboxPublisher
	Metrics *metrics.LoanMetrics
	Logger  *logger.Logger
	Policy  Policy
	Clock   Clock
}

type service struct {
	tx      txRunner
	repo    Repository
	reads   readModel
	outbox  outboxPublisher
	metrics *metrics.LoanMetrics
	logg    *logger.Logger
	policy  Policy
	clock   Clock
	factory LoanFactory
	fines   FineCalculator
}

func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("loans repository required")
	}
	if params.Reads == nil {
		return nil, fmt.Errorf("loans read model required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Policy.PeriodDays <= 0 {
		return nil, fmt.Errorf("loan period must be positive")
	}
	if params.Policy.Location == nil {
		params.Policy.Location = time.UTC
	}
	if params.Policy.Calendar == (CalendarRule{}) {
		params.Policy.Calendar = DefaultCalendar
	}
	if params.Clock == nil {
		params.Clock = time.Now
	}
	return &service{
		tx:      params.Tx,
		repo:    params.Repo,
		reads:   params.Reads,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    params.Logger,
		policy:  params.Policy,
		clock:   params.Clock,
		factory: NewLoanFactory(params.Policy.PeriodDays),
		fines:   NewFineCalculator(params.Policy.Calendar, params.Policy.UnitFine, params.Policy.PeriodDays),
	}, nil
}

// now returns the current instant and the civil date in the lending timezone.
func (s *service) now() (time.Time, time.Time) {
	instant := s.clock()
	return instant, CivilDate(instant.In(s.policy.Location))
}

func (s *service) Borrow(ctx context.Context, req BorrowRequest) (*BorrowConfirmation, error) {
	if req.MemberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	instant, today := s.now()

	var group *NewLoanGroup
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.LockMember(ctx, req.MemberID); err != nil {
			return err
		}
		snapshot, err := loadEligibility(ctx, repo, req.MemberID, today)
		if err != nil {
			return err
		}
		if err := CheckEligibility(snapshot); err != nil {
			return err
		}

		group, err = s.factory.Create(req.MemberID, req.Items, today)
		if err != nil {
			return err
		}
		if err := repo.InsertLoans(ctx, group.Loans); err != nil {
			return err
		}

		payload := BuildBorrowEvent(BorrowFacts{
			MemberID:      req.MemberID,
			LoanGroupID:   group.LoanGroupID,
			SourceService: s.policy.SourceService,
			StartDate:     group.StartDate,
			DueDate:       group.DueDate,
			Items:         req.Items,
		}, instant)
		return s.outbox.Emit(ctx, tx, s.domainEvent(enums.EventLibraryBorrowed, req.MemberID, group.LoanGroupID, payload, instant))
	})
	if err != nil {
		return nil, s.reject(ctx, req.MemberID, "borrow", err)
	}

	s.metrics.IncBorrowed()
	if s.logg != nil {
		logCtx := s.logg.WithLoanGroupID(s.logg.WithMemberID(ctx, req.MemberID), group.LoanGroupID)
		logCtx = s.logg.WithField(logCtx, "item_count", len(group.Loans))
		s.logg.Info(logCtx, "loan.borrowed")
	}

	return &BorrowConfirmation{
		LoanGroupID: group.LoanGroupID,
		StartDate:   FormatDate(group.StartDate),
		DueDate:     FormatDate(group.DueDate),
		ItemCount:   len(group.Loans),
	}, nil
}

func (s *service) Return(ctx context.Context, req ReturnRequest) (*ReturnConfirmation, error) {
	if req.MemberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	if req.LoanGroupID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loan group id required")
	}
	instant, today := s.now()

	var fine Fine
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.LockMember(ctx, req.MemberID); err != nil {
			return err
		}
		open, err := repo.FindOpenLoans(ctx, req.LoanGroupID, req.MemberID)
		if err != nil {
			return err
		}
		if len(open) == 0 {
			return ErrLoanNotFound
		}

		first := open[0]
		fine, err = s.fines.Compute(first.DueDate, today)
		if err != nil {
			return err
		}

		ids := make([]int64, len(open))
		for i, loan := range open {
			ids[i] = loan.ID
		}
		updated, err := repo.SetReturnDate(ctx, ids, today)
		if err != nil {
			return err
		}
		if updated == 0 {
			return ErrLoanNotFound
		}

		items := req.Items
		if len(items) == 0 {
			items = itemsFromLoans(open)
		}
		payload := BuildReturnEvent(ReturnFacts{
			MemberID:      req.MemberID,
			LoanGroupID:   req.LoanGroupID,
			SourceService: s.policy.SourceService,
			StartDate:     first.StartDate,
			DueDate:       first.DueDate,
			ReturnDate:    today,
			Fine:          fine,
			Items:         items,
		}, instant)
		return s.outbox.Emit(ctx, tx, s.domainEvent(enums.EventLibraryReturned, req.MemberID, req.LoanGroupID, payload, instant))
	})
	if err != nil {
		return nil, s.reject(ctx, req.MemberID, "return", err)
	}

	s.metrics.ObserveReturn(fine.IsLate, fine.ChargeableLateDays)
	if s.logg != nil {
		logCtx := s.logg.WithLoanGroupID(s.logg.WithMemberID(ctx, req.MemberID), req.LoanGroupID)
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"late_days":  fine.ChargeableLateDays,
			"fee_amount": fine.FeeAmount.String(),
		})
		s.logg.Info(logCtx, "loan.returned")
	}

	return &ReturnConfirmation{
		LoanGroupID:        req.LoanGroupID,
		IsLate:             fine.IsLate,
		ChargeableLateDays: fine.ChargeableLateDays,
		FeeAmount:          fine.FeeAmount,
	}, nil
}

func (s *service) History(ctx context.Context, memberID uuid.UUID, req pagination.PageRequest) (*HistoryPage, error) {
	if memberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	req = normalizeHistoryRequest(req)

	rows, total, err := s.reads.LoanGroups(ctx, memberID, req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load loan history")
	}
	groupIDs := make([]uuid.UUID, len(rows))
	for i, row := range rows {
		groupIDs[i] = row.LoanGroupID
	}
	items, err := s.reads.ItemsForGroups(ctx, memberID, groupIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load loan items")
	}

	page := &HistoryPage{
		MemberID:   memberID,
		Groups:     make([]LoanGroupSummary, 0, len(rows)),
		Page:       req.Page,
		Size:       req.Size,
		Total:      total,
		TotalPages: pagination.TotalPages(total, req.Size),
	}
	for i, row := range rows {
		summary := LoanGroupSummary{
			LoanGroupID: row.LoanGroupID,
			StartDate:   FormatDate(row.StartDate),
			DueDate:     FormatDate(row.DueDate),
			FeeAmount:   decimal.Zero,
			Items:       items[row.LoanGroupID],
		}
		if row.ReturnDate == nil {
			if !page.HasUnreturned {
				position := i
				page.HasUnreturned = true
				page.UnreturnedPosition = &position
			}
		} else {
			returned := FormatDate(*row.ReturnDate)
			summary.ReturnDate = &returned
			if fine, err := s.fines.Compute(row.DueDate, *row.ReturnDate); err == nil {
				summary.IsLate = fine.IsLate
				summary.LateDays = fine.ChargeableLateDays
				summary.FeeAmount = fine.FeeAmount
			}
		}
		if summary.Items == nil {
			summary.Items = []LoanItem{}
		}
		page.Groups = append(page.Groups, summary)
	}
	return page, nil
}

func (s *service) TopChapters(ctx context.Context, period enums.BorrowPeriod, req pagination.PageRequest) (*TopChaptersPage, error) {
	if !period.IsValid() {
		period = enums.BorrowPeriodCurrentWeek
	}
	req.Size = pagination.NormalizeSize(req.Size)
	if req.Page < 0 {
		req.Page = 0
	}
	_, today := s.now()
	from, to := PeriodWindow(period, today)

	chapters, total, err := s.reads.TopChapters(ctx, from, to, req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load top chapters")
	}
	return &TopChaptersPage{
		Period:   period,
		From:     FormatDate(from),
		To:       FormatDate(to),
		Chapters: chapters,
		Page:     req.Page,
		Size:     req.Size,
		Total:    total,
	}, nil
}

func (s *service) domainEvent(eventType enums.OutboxEventType, memberID, loanGroupID uuid.UUID, payload any, at time.Time) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventID:       loanGroupID,
		EventType:     eventType,
		AggregateType: enums.AggregateLoanGroup,
		AggregateID:   loanGroupID,
		Actor:         &outbox.ActorRef{MemberID: memberID, Source: s.policy.SourceService},
		Data:          payload,
		OccurredAt:    at,
	}
}

func (s *service) reject(ctx context.Context, memberID uuid.UUID, op string, err error) error {
	mapped, reason := classify(err)
	if reason != "" {
		s.metrics.IncRejection(reason)
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithMemberID(ctx, memberID), map[string]any{
			"operation": op,
			"reason":    reason,
		})
		if reason != "" {
			s.logg.Warn(logCtx, "loan transition rejected")
		} else {
			s.logg.Error(logCtx, "loan transition failed", err)
		}
	}
	return mapped
}

func normalizeHistoryRequest(req pagination.PageRequest) pagination.PageRequest {
	req.Size = pagination.NormalizeSize(req.Size)
	if req.Page < 0 {
		req.Page = 0
	}
	if req.Sort == "" {
		req.Sort = colStartDate
	}
	if req.Direction == "" {
		req.Direction = pagination.Desc
	}
	return req
}

func itemsFromLoans(rows []models.Loan) []ItemRequest {
	items := make([]ItemRequest, len(rows))
	for i, row := range rows {
		items[i] = ItemRequest{ItemID: row.ItemID}
		items[i].Chapter.ChapterID = row.ChapterID
	}
	return items
}
