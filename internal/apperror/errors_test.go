package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestConstructors_StatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		code int
	}{
		{"validation", NewValidation("bad"), http.StatusBadRequest},
		{"duplicate", NewDuplicate("taken"), http.StatusBadRequest},
		{"unauthorized", NewUnauthorized("no"), http.StatusUnauthorized},
		{"forbidden", NewForbidden("no"), http.StatusForbidden},
		{"conflict", NewConflict("dup"), http.StatusConflict},
		{"too many", NewTooManyRequests("slow down"), http.StatusTooManyRequests},
		{"bad gateway", NewBadGateway("upstream", errors.New("timeout")), http.StatusBadGateway},
		{"unavailable", NewUnavailable("off"), http.StatusServiceUnavailable},
		{"internal", NewInternal(errors.New("db down")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, tt.err.Code)
			}
		})
	}
}

func TestNewInternal_HidesCause(t *testing.T) {
	err := NewInternal(errors.New("duplicate key users.email"))
	if SafeMessage(err) == "duplicate key users.email" {
		t.Fatal("internal detail leaked into safe message")
	}
	if !errors.Is(err, err.Internal) {
		t.Error("expected Unwrap to expose the internal error")
	}
}

func TestSafeMessageAndCode_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", NewForbidden("Inactive user"))
	if got := SafeMessage(wrapped); got != "Inactive user" {
		t.Errorf("expected wrapped message, got %q", got)
	}
	if got := SafeCode(wrapped); got != http.StatusForbidden {
		t.Errorf("expected 403, got %d", got)
	}

	plain := errors.New("raw sql error")
	if SafeCode(plain) != http.StatusInternalServerError {
		t.Error("expected 500 for non-AppError")
	}
	if SafeMessage(plain) == "raw sql error" {
		t.Error("expected generic message for non-AppError")
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(NewNotFound("user not found")) {
		t.Error("expected NotFound to match")
	}
	if IsNotFound(NewConflict("x")) {
		t.Error("expected Conflict not to match")
	}
	if IsNotFound(nil) {
		t.Error("expected nil not to match")
	}
}

func TestInternalMessageIsFixed(t *testing.T) {
	if got := NewMissingContext().Message; got != InternalMessage {
		t.Errorf("expected %q, got %q", InternalMessage, got)
	}
	if got := SafeMessage(errors.New("boom")); got != InternalMessage {
		t.Errorf("expected %q, got %q", InternalMessage, got)
	}
}
