package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
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
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeAlreadyMember, status: http.StatusConflict, publicMsg: "user is already a member", detailsOK: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, publicMsg: "rate limit exceeded"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
		{code: CodeTransport, status: http.StatusBadGateway, publicMsg: "delivery failed", retryable: true},
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
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsCodeFollowsWrappedChain(t *testing.T) {
	inner := New(CodeAlreadyMember, "user already invited")
	outer := fmt.Errorf("invite: %w", inner)
	if !IsCode(outer, CodeAlreadyMember) {
		t.Fatalf("expected IsCode to find ALREADY_MEMBER through wrap")
	}
	if IsCode(outer, CodeNotFound) {
		t.Fatalf("expected IsCode false for different code")
	}
	if IsCode(stdErrors.New("plain"), CodeInternal) {
		t.Fatalf("expected IsCode false for untyped error")
	}
}

func TestDumpCapturesChain(t *testing.T) {
	err := Wrap(CodeInternal, stdErrors.New("disk gone"), "save product")
	d := Dump(err)
	if d.Code != CodeInternal {
		t.Fatalf("expected internal code, got %s", d.Code)
	}
	if len(d.Chain) != 2 {
		t.Fatalf("expected two entries in chain, got %v", d.Chain)
	}
	if d.Postgres != nil {
		t.Fatalf("expected no postgres detail for plain error")
	}
	if _, ok := d.Fields()["pg_code"]; ok {
		t.Fatalf("plain error should not log pg fields")
	}
}

func TestDumpExtractsPostgresDetail(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "reactions_product_user_emoji_key", TableName: "reactions"}
	err := Wrap(CodeConflict, fmt.Errorf("insert reaction: %w", pgErr), "toggle reaction")

	d := Dump(err)
	if d.Postgres == nil {
		t.Fatalf("expected postgres detail")
	}
	if d.Postgres.Code != "23505" || d.Postgres.Constraint != "reactions_product_user_emoji_key" {
		t.Fatalf("unexpected postgres detail %+v", d.Postgres)
	}
	fields := d.Fields()
	if fields["pg_table"] != "reactions" {
		t.Fatalf("expected pg_table field, got %v", fields["pg_table"])
	}
	if fields["error_code"] != CodeConflict {
		t.Fatalf("expected conflict code field, got %v", fields["error_code"])
	}
}

func TestDumpExtractsLibPQDetail(t *testing.T) {
	d := Dump(fmt.Errorf("query: %w", &pq.Error{Code: "23503", Table: "products"}))
	if d.Postgres == nil || d.Postgres.Code != "23503" || d.Postgres.Table != "products" {
		t.Fatalf("unexpected postgres detail %+v", d.Postgres)
	}
}
