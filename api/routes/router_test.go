package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/circulation-backend/api/middleware"
	"github.com/angelmondragon/circulation-backend/internal/loans"
	pkgAuth "github.com/angelmondragon/circulation-backend/pkg/auth"
	"github.com/angelmondragon/circulation-backend/pkg/config"
	"github.com/angelmondragon/circulation-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/circulation-backend/pkg/errors"
	"github.com/angelmondragon/circulation-backend/pkg/logger"
	"github.com/angelmondragon/circulation-backend/pkg/metrics"
	"github.com/angelmondragon/circulation-backend/pkg/pagination"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type memoryStore struct {
	data map[string]string
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key], _ = value.(string)
	return true, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.data[key], _ = value.(string)
	return nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("test:%s:%s", scope, id)
}

type stubLoanService struct {
	borrowCalls int
	borrowReq   loans.BorrowRequest
	borrowErr   error
	returnReq   loans.ReturnRequest
	returnErr   error
	historyReq  pagination.PageRequest
	period      enums.BorrowPeriod
}

func (s *stubLoanService) Borrow(_ context.Context, req loans.BorrowRequest) (*loans.BorrowConfirmation, error) {
	s.borrowCalls++
	s.borrowReq = req
	if s.borrowErr != nil {
		return nil, s.borrowErr
	}
	return &loans.BorrowConfirmation{LoanGroupID: uuid.New(), StartDate: "2025-12-01", DueDate: "2025-12-15", ItemCount: len(req.Items)}, nil
}

func (s *stubLoanService) Return(_ context.Context, req loans.ReturnRequest) (*loans.ReturnConfirmation, error) {
	s.returnReq = req
	if s.returnErr != nil {
		return nil, s.returnErr
	}
	return &loans.ReturnConfirmation{LoanGroupID: req.LoanGroupID, IsLate: true, ChargeableLateDays: 1, FeeAmount: decimal.NewFromInt(500)}, nil
}

func (s *stubLoanService) History(_ context.Context, memberID uuid.UUID, req pagination.PageRequest) (*loans.HistoryPage, error) {
	s.historyReq = req
	return &loans.HistoryPage{MemberID: memberID, Groups: []loans.LoanGroupSummary{}, Page: req.Page, Size: req.Size}, nil
}

func (s *stubLoanService) TopChapters(_ context.Context, period enums.BorrowPeriod, req pagination.PageRequest) (*loans.TopChaptersPage, error) {
	s.period = period
	return &loans.TopChaptersPage{Period: period, Chapters: []loans.ChapterBorrowCount{}, Page: req.Page, Size: req.Size}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "circulation"},
	}
}

type harness struct {
	cfg     *config.Config
	router  http.Handler
	loans   *stubLoanService
	store   *memoryStore
	member  uuid.UUID
	token   string
	metrics *metrics.LoanMetrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testConfig()
	reg := prometheus.NewRegistry()
	h := &harness{
		cfg:     cfg,
		loans:   &stubLoanService{},
		store:   &memoryStore{data: map[string]string{}},
		member:  uuid.New(),
		metrics: metrics.NewLoanMetrics(reg),
	}
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	h.router = NewRouter(cfg, logg, Dependencies{
		DB:          stubPinger{},
		Redis:       stubPinger{},
		Idempotency: h.store,
		Loans:       h.loans,
		Gatherer:    reg,
	})
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), time.Hour, pkgAuth.AccessTokenPayload{MemberCardID: h.member})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	h.token = token
	return h
}

func (h *harness) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+h.token)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	h.router.ServeHTTP(resp, req)
	return resp
}

func borrowBody() string {
	return fmt.Sprintf(`{"items":[{"item_id":%q,"chapter_id":%q,"title":"The Long Night","chapter_number":12}]}`, uuid.NewString(), uuid.NewString())
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)
	h.metrics.IncBorrowed()

	resp := h.do(http.MethodGet, "/health/live", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected live 200 got %d", resp.Code)
	}
	resp = h.do(http.MethodGet, "/health/ready", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected ready 200 got %d", resp.Code)
	}
	resp = h.do(http.MethodGet, "/metrics", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected metrics 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "circulation_loans_borrowed_total 1") {
		t.Fatalf("expected borrowed counter in exposition, got %s", resp.Body.String())
	}
}

func TestReadyReportsFailingDependency(t *testing.T) {
	cfg := testConfig()
	router := NewRouter(cfg, nil, Dependencies{DB: stubPinger{err: fmt.Errorf("down")}})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestBorrowRequiresToken(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/members/"+h.member.String()+"/loans", strings.NewReader(borrowBody()))
	req.Header.Set("Idempotency-Key", "k1")
	resp := httptest.NewRecorder()
	h.router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
	if h.loans.borrowCalls != 0 {
		t.Fatalf("service must not run without a token")
	}
}

func TestBorrowRejectsOtherMember(t *testing.T) {
	h := newHarness(t)
	resp := h.do(http.MethodPost, "/api/v1/members/"+uuid.NewString()+"/loans", borrowBody(), map[string]string{"Idempotency-Key": "k1"})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestBorrowCreatesAndReplays(t *testing.T) {
	h := newHarness(t)
	path := "/api/v1/members/" + h.member.String() + "/loans"
	body := borrowBody()

	resp := h.do(http.MethodPost, path, body, nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without idempotency key got %d", resp.Code)
	}

	resp = h.do(http.MethodPost, path, body, map[string]string{"Idempotency-Key": "borrow-1"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data loans.BorrowConfirmation `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.ItemCount != 1 || envelope.Data.DueDate != "2025-12-15" {
		t.Fatalf("unexpected confirmation %+v", envelope.Data)
	}
	if h.loans.borrowReq.MemberID != h.member {
		t.Fatalf("expected member from token, got %s", h.loans.borrowReq.MemberID)
	}
	if h.loans.borrowReq.Items[0].Chapter.Title != "The Long Night" {
		t.Fatalf("chapter details not forwarded: %+v", h.loans.borrowReq.Items[0])
	}

	replay := h.do(http.MethodPost, path, body, map[string]string{"Idempotency-Key": "borrow-1"})
	if replay.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201 got %d", replay.Code)
	}
	if replay.Header().Get(middleware.ReplayedHeader) != "true" {
		t.Fatalf("expected replay marker header")
	}
	if h.loans.borrowCalls != 1 {
		t.Fatalf("expected a single service call, got %d", h.loans.borrowCalls)
	}
}

func TestBorrowRejectsMalformedItems(t *testing.T) {
	h := newHarness(t)
	path := "/api/v1/members/" + h.member.String() + "/loans"
	resp := h.do(http.MethodPost, path, `{"items":[{"item_id":"nope","chapter_id":"nope"}]}`, map[string]string{"Idempotency-Key": "bad-1"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if h.loans.borrowCalls != 0 {
		t.Fatalf("service must not run for invalid payloads")
	}
}

func TestBorrowMapsEngineErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"conflict", pkgerrors.Wrap(pkgerrors.CodeConflict, loans.ErrOutstandingLoanConflict, "member has an outstanding loan"), http.StatusConflict},
		{"daily limit", pkgerrors.Wrap(pkgerrors.CodeForbidden, loans.ErrDailyLimitExceeded, "daily borrow limit reached"), http.StatusForbidden},
		{"empty", pkgerrors.Wrap(pkgerrors.CodeValidation, loans.ErrEmptyRequest, "at least one item is required"), http.StatusBadRequest},
		{"store down", pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("conn reset"), "loan store unavailable"), http.StatusServiceUnavailable},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.loans.borrowErr = tc.err
			resp := h.do(http.MethodPost, "/api/v1/members/"+h.member.String()+"/loans", borrowBody(), map[string]string{"Idempotency-Key": fmt.Sprintf("err-%d", i)})
			if resp.Code != tc.want {
				t.Fatalf("expected %d got %d", tc.want, resp.Code)
			}
		})
	}
}

func TestReturnAcceptsEmptyBody(t *testing.T) {
	h := newHarness(t)
	groupID := uuid.New()
	resp := h.do(http.MethodPost, "/api/v1/members/"+h.member.String()+"/loans/"+groupID.String()+"/return", "", map[string]string{"Idempotency-Key": "ret-1"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if h.loans.returnReq.LoanGroupID != groupID || len(h.loans.returnReq.Items) != 0 {
		t.Fatalf("unexpected return request %+v", h.loans.returnReq)
	}
	if !strings.Contains(resp.Body.String(), `"fee_amount":"500"`) {
		t.Fatalf("expected fee in body, got %s", resp.Body.String())
	}
}

func TestReturnRejectsBadGroupID(t *testing.T) {
	h := newHarness(t)
	resp := h.do(http.MethodPost, "/api/v1/members/"+h.member.String()+"/loans/not-a-uuid/return", "", map[string]string{"Idempotency-Key": "ret-2"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestHistoryParsesPaging(t *testing.T) {
	h := newHarness(t)
	base := "/api/v1/members/" + h.member.String() + "/loans/history"

	resp := h.do(http.MethodGet, base+"?page=2&size=5&sort=due_date&direction=asc", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	want := pagination.PageRequest{Page: 2, Size: 5, Sort: "due_date", Direction: pagination.Asc}
	if h.loans.historyReq != want {
		t.Fatalf("expected %+v got %+v", want, h.loans.historyReq)
	}

	resp = h.do(http.MethodGet, base+"?sort=item_id", "", nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown sort got %d", resp.Code)
	}
	resp = h.do(http.MethodGet, base+"?size=500", "", nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized page got %d", resp.Code)
	}
}

func TestTopChaptersIsPublic(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/loans/top-chapters?period=LastMonth", nil)
	resp := httptest.NewRecorder()
	h.router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if h.loans.period != enums.BorrowPeriodLastMonth {
		t.Fatalf("expected lastmonth, got %s", h.loans.period)
	}
}
