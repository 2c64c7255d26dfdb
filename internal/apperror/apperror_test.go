package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("tag", "machine-learning"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("title", "title is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Conflict wraps ErrConflict",
			err:       Conflict("connection", "device already connected"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "Unauthorized wraps ErrUnauthorized",
			err:       Unauthorized("invalid API key"),
			target:    ErrUnauthorized,
			wantMatch: true,
		},
		{
			name:      "CapacityExceeded wraps ErrCapacity",
			err:       CapacityExceeded("connection limit reached"),
			target:    ErrCapacity,
			wantMatch: true,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("tag", "machine-learning"),
			target:    ErrValidation,
			wantMatch: false,
		},
		{
			name:      "CapacityExceeded does NOT match ErrConflict",
			err:       CapacityExceeded("connection limit reached"),
			target:    ErrConflict,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

// Sentinels must survive fmt.Errorf %w wrapping, since services always wrap
// repository errors with context before returning them.
func TestErrorsIs_ThroughWrapping(t *testing.T) {
	inner := NotFound("content", "abc123")
	wrapped := fmt.Errorf("loading content: %w", inner)

	if !errors.Is(wrapped, ErrNotFound) {
		t.Error("errors.Is() lost ErrNotFound through fmt.Errorf wrapping")
	}

	var appErr *AppError
	if !errors.As(wrapped, &appErr) {
		t.Fatal("errors.As() failed to extract *AppError through wrapping")
	}
	if appErr.Message != "content not found with id abc123" {
		t.Errorf("Message = %q", appErr.Message)
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("tag", "golang"),
			wantMessage: "tag not found with id golang",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("tagName", "tag name is required"),
			wantMessage: "tag name is required",
		},
		{
			name:        "Conflict message includes resource",
			err:         Conflict("tag", "already exists"),
			wantMessage: "tag: already exists",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	err := NotFound("content", "abc123")
	if unwrapped := err.Unwrap(); unwrapped != ErrNotFound {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, ErrNotFound)
	}
}

func TestValidationFailedField(t *testing.T) {
	err := ValidationFailed("email", "invalid email format")
	if err.Field != "email" {
		t.Errorf("Field = %q, want %q", err.Field, "email")
	}
}
