package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without wrapped error",
			err:  New(CodeApprovalNotFound, "approval not found", http.StatusNotFound),
			want: "APPROVAL_NOT_FOUND: approval not found",
		},
		{
			name: "with wrapped error",
			err:  Wrap(fmt.Errorf("db error"), "DB_ERROR", "database failure", http.StatusInternalServerError),
			want: "DB_ERROR: database failure: db error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Internal(inner, "boom")

	if !errors.Is(appErr, inner) {
		t.Error("errors.Is should match inner error")
	}
	if appErr.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("HTTPStatus = %d, want 500", appErr.HTTPStatus)
	}
}

func TestIsAppError(t *testing.T) {
	appErr := BadRequest(CodeInvalidState, "An earlier approval is still pending.")
	wrapped := fmt.Errorf("wrapped: %w", appErr)

	got, ok := IsAppError(wrapped)
	if !ok {
		t.Fatal("IsAppError should find wrapped AppError")
	}
	if got.Code != CodeInvalidState {
		t.Errorf("Code = %q, want %q", got.Code, CodeInvalidState)
	}

	if _, ok := IsAppError(errors.New("plain")); ok {
		t.Error("IsAppError should be false for plain errors")
	}
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("ctx: %w", Forbidden(CodeForbidden, "nope"))
	if !HasCode(err, CodeForbidden) {
		t.Error("HasCode should match")
	}
	if HasCode(err, CodeInvalidState) {
		t.Error("HasCode should not match other codes")
	}
}

func TestWithFieldErrors(t *testing.T) {
	err := BadRequest(CodeValidationFailed, "invalid").WithFieldErrors([]FieldError{
		{Field: "lines", Message: "At least one line is required."},
	})
	if len(err.FieldErrors) != 1 {
		t.Fatalf("FieldErrors len = %d, want 1", len(err.FieldErrors))
	}

	same := BadRequest(CodeValidationFailed, "invalid").WithFieldErrors(nil)
	if same.FieldErrors != nil {
		t.Error("empty field errors should leave the slice nil")
	}
}
