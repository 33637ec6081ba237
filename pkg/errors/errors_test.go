package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodePayloadTooLarge, status: http.StatusRequestEntityTooLarge, publicMsg: "request body too large", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeIdempotency, status: http.StatusConflict, publicMsg: "idempotency key reused", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "item list empty")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "item list empty" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	base.WithDetails(map[string]any{"field": "items"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("member already has an open loan")
	wrapped := Wrap(CodeConflict, cause, "borrow rejected")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("borrow: %w", Newf(CodeNotFound, "loan group %s not open", "g-1"))
	if !stdErrors.Is(err, New(CodeNotFound, "")) {
		t.Fatalf("expected code match through wrapping")
	}
	if stdErrors.Is(err, New(CodeConflict, "")) {
		t.Fatalf("different codes must not match")
	}
	if got := As(err).Message(); got != "loan group g-1 not open" {
		t.Fatalf("unexpected formatted message %q", got)
	}
}

func TestAsAndHasCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("controller: %w", New(CodeForbidden, "daily limit"))
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if !HasCode(err, CodeForbidden) {
		t.Fatalf("expected HasCode to match")
	}
	if HasCode(err, CodeNotFound) {
		t.Fatalf("unexpected code match")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestDumpCapturesPostgresDetails(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "loans_pkey", TableName: "loans", Message: "duplicate key"}
	err := Wrap(CodeDependency, pgErr, "insert loans")

	dump := Dump(err)
	if dump.Code != CodeDependency {
		t.Fatalf("expected dependency code, got %s", dump.Code)
	}
	if dump.PG == nil || dump.PG.Code != "23505" || dump.PG.Constraint != "loans_pkey" || dump.PG.Table != "loans" {
		t.Fatalf("unexpected pg details %+v", dump.PG)
	}
	if !dump.Retryable {
		t.Fatalf("dependency errors should be retryable")
	}
	if len(dump.Chain) != 2 {
		t.Fatalf("expected two chain entries, got %v", dump.Chain)
	}
	if got := dump.Fields()["pg_constraint"]; got != "loans_pkey" {
		t.Fatalf("expected pg fields in log fields, got %v", got)
	}
}

func TestDumpOmitsPostgresFieldsForPlainErrors(t *testing.T) {
	dump := Dump(New(CodeConflict, "member has an open loan"))
	if dump.PG != nil {
		t.Fatalf("expected no pg info, got %+v", dump.PG)
	}
	if _, ok := dump.Fields()["pg_code"]; ok {
		t.Fatalf("pg keys should be omitted")
	}
	if dump.Retryable {
		t.Fatalf("conflicts are not retryable")
	}
}
