package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorsIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("cancel: %w", NotFound(CodeContestNotFound, "contest %s not found", "abc"))

	if !errors.Is(err, ErrNotFound) {
		t.Error("expected errors.Is(err, ErrNotFound)")
	}
	if errors.Is(err, ErrInvalidTransition) {
		t.Error("not-found must not match invalid transition")
	}
	if !errors.Is(err, &Error{Kind: KindNotFound, Code: CodeContestNotFound}) {
		t.Error("expected match on kind+code")
	}
	if errors.Is(err, &Error{Kind: KindNotFound, Code: CodeJobNotFound}) {
		t.Error("different code must not match")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{NotFound(CodeContestNotFound, "x"), http.StatusNotFound},
		{InvalidTransition(CodeTerminalState, "x"), http.StatusConflict},
		{InvalidTransition(CodeInvalidStatus, "x"), http.StatusConflict},
		{Conflict(CodeSettlementDiverged, "x"), http.StatusConflict},
		{Validation("x"), http.StatusBadRequest},
		{&Error{Code: CodeInternal}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			if got := tt.err.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAsFallsBackToInternal(t *testing.T) {
	e := As(errors.New("connection refused"))
	if e.Code != CodeInternal {
		t.Errorf("Code = %q, want %q", e.Code, CodeInternal)
	}
	if e.HTTPStatus() != http.StatusInternalServerError {
		t.Errorf("unexpected status %d", e.HTTPStatus())
	}

	wrapped := fmt.Errorf("outer: %w", Validation("reason is required"))
	if got := As(wrapped); got.Code != CodeValidation {
		t.Errorf("Code = %q, want %q", got.Code, CodeValidation)
	}
}
