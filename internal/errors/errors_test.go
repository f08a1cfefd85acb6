package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err:  &AppError{Code: ErrCodeNotFound, Message: "resource not found"},
			want: "resource not found",
		},
		{
			name: "error with cause",
			err:  &AppError{Code: ErrCodeInternal, Message: "failed to process", Cause: errors.New("underlying error")},
			want: "failed to process: underlying error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(cause, ErrCodeUnavailable, "store unreachable")

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is should find the cause")
	}
}

func TestAppError_IsMatchesCodeSentinels(t *testing.T) {
	err := fmt.Errorf("delete article: %w", Forbidden("only the author or an admin may delete"))

	if !errors.Is(err, ErrForbidden) {
		t.Errorf("errors.Is(err, ErrForbidden) = false, want true")
	}
	if errors.Is(err, ErrNotFound) {
		t.Errorf("errors.Is(err, ErrNotFound) = true, want false")
	}
	if errors.Is(err, Forbidden("other message")) {
		t.Errorf("a message-bearing target must not match by code alone")
	}
	if !IsForbidden(err) {
		t.Errorf("IsForbidden() = false")
	}
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		err   error
		check func(error) bool
	}{
		{NotFoundf("article %s not found", "a1"), IsNotFound},
		{&AppError{Code: ErrCodeConflict, Message: "dup"}, IsConflict},
		{Validation("bad"), IsValidation},
		{Forbidden("no"), IsForbidden},
		{Unauthenticated("sign in"), IsUnauthenticated},
	}
	for _, tt := range tests {
		if !tt.check(tt.err) {
			t.Errorf("predicate failed for %v (code %s)", tt.err, GetCode(tt.err))
		}
		if tt.check(errors.New("plain")) {
			t.Errorf("predicate matched a plain error")
		}
	}
}

func TestValidationField(t *testing.T) {
	cause := errors.New("title exceeds 100 characters")
	err := ValidationField("title", cause)

	if GetField(err) != "title" {
		t.Errorf("GetField() = %q, want title", GetField(err))
	}
	if !errors.Is(err, cause) {
		t.Errorf("ValidationField should wrap the cause")
	}
}

func TestWrap_Nil(t *testing.T) {
	if Wrap(nil, ErrCodeInternal, "x") != nil {
		t.Errorf("Wrap(nil) should be nil")
	}
}
