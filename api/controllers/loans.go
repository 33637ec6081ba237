package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/circulation-backend/api/middleware"
	"github.com/angelmondragon/circulation-backend/api/responses"
	"github.com/angelmondragon/circulation-backend/api/validators"
	"github.com/angelmondragon/circulation-backend/internal/loans"
	"github.com/angelmondragon/circulation-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/circulation-backend/pkg/errors"
	"github.com/angelmondragon/circulation-backend/pkg/logger"
	"github.com/angelmondragon/circulation-backend/pkg/outbox/payloads"
)

const loanGroupIDParam = "loanGroupID"

type loanItemPayload struct {
	ItemID          string `json:"item_id" validate:"required,uuid"`
	ChapterID       string `json:"chapter_id" validate:"required,uuid"`
	Title           string `json:"title" validate:"max=255"`
	SecondTitle     string `json:"second_title" validate:"max=255"`
	ChapterNumber   int    `json:"chapter_number" validate:"min=0"`
	TotalPages      int    `json:"total_pages" validate:"min=0"`
	CoverArtworkURL string `json:"cover_artwork_url" validate:"omitempty,url"`
}

type borrowPayload struct {
	Items []loanItemPayload `json:"items" validate:"dive"`
}

type returnPayload struct {
	Items []loanItemPayload `json:"items" validate:"dive"`
}

func (p loanItemPayload) toItem() loans.ItemRequest {
	return loans.ItemRequest{
		ItemID: uuid.MustParse(p.ItemID),
		Chapter: payloads.ChapterDetails{
			ChapterID:       uuid.MustParse(p.ChapterID),
			Title:           strings.TrimSpace(p.Title),
			SecondTitle:     strings.TrimSpace(p.SecondTitle),
			ChapterNumber:   p.ChapterNumber,
			TotalPages:      p.TotalPages,
			CoverArtworkURL: strings.TrimSpace(p.CoverArtworkURL),
		},
	}
}

func toItems(in []loanItemPayload) []loans.ItemRequest {
	items := make([]loans.ItemRequest, 0, len(in))
	for _, p := range in {
		items = append(items, p.toItem())
	}
	return items
}

// LoanBorrow opens a loan group for the path member.
func LoanBorrow(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "loans service unavailable"))
			return
		}

		var body borrowPayload
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		conf, err := svc.Borrow(ctx, loans.BorrowRequest{
			MemberID: middleware.MemberIDFromContext(ctx),
			Items:    toItems(body.Items),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, conf)
	}
}

// LoanReturn closes an open loan group. The body is optional.
func LoanReturn(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "loans service unavailable"))
			return
		}

		groupID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, loanGroupIDParam)))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid loan group id"))
			return
		}

		var body returnPayload
		if r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		conf, err := svc.Return(ctx, loans.ReturnRequest{
			MemberID:    middleware.MemberIDFromContext(ctx),
			LoanGroupID: groupID,
			Items:       toItems(body.Items),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, conf)
	}
}

// LoanHistory pages the member's loan groups.
func LoanHistory(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "loans service unavailable"))
			return
		}

		req, err := validators.ParsePageRequest(r, loans.HistorySortColumns, loans.HistorySortColumns[0])
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		page, err := svc.History(ctx, middleware.MemberIDFromContext(ctx), req)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func TopChapters(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "loans service unavailable"))
			return
		}

		req, err := validators.ParsePageRequest(r, nil, "")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		period := enums.ParseBorrowPeriod(r.URL.Query().Get("period"))
		page, err := svc.TopChapters(ctx, period, req)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}
