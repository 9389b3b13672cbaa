package httpx

import (
	"errors"
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
			name: "error without internal err",
			err:  NewAppError(http.StatusBadRequest, CodeParamMissing, "param missing", nil),
			want: "code=2001, message=param missing",
		},
		{
			name: "error with internal err",
			err:  NewAppError(http.StatusInternalServerError, CodeInternalError, "internal error", errors.New("db connection failed")),
			want: "code=5001, message=internal error, err=db connection failed",
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

func TestErrRouteNotFound(t *testing.T) {
	err := ErrRouteNotFound("course/missing")
	if err.HTTPStatus != http.StatusNotFound {
		t.Errorf("Expected HTTP status %d, got %d", http.StatusNotFound, err.HTTPStatus)
	}
	if err.Code != CodeRouteNotFound {
		t.Errorf("Expected code %d, got %d", CodeRouteNotFound, err.Code)
	}
	want := "The requested URL course/missing was not found on this server."
	if err.Message != want {
		t.Errorf("Expected message %q, got %q", want, err.Message)
	}
}

func TestDefaultMessages(t *testing.T) {
	tests := []struct {
		err  *AppError
		want string
	}{
		{ErrUnauthorized(""), "unauthorized"},
		{ErrForbidden(""), "forbidden"},
		{ErrParamMissing(""), "parameter missing"},
		{ErrNotFound(""), "resource not found"},
		{ErrParamMissing("field 'qs' is required"), "field 'qs' is required"},
	}

	for _, tt := range tests {
		if tt.err.Message != tt.want {
			t.Errorf("Expected message %q, got %q", tt.want, tt.err.Message)
		}
	}
}

func TestErrInternalError_Unwrap(t *testing.T) {
	internalErr := errors.New("database connection failed")
	err := ErrInternalError("internal error", internalErr)

	if err.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("Expected HTTP status %d, got %d", http.StatusInternalServerError, err.HTTPStatus)
	}
	if !errors.Is(err, internalErr) {
		t.Error("Expected internal error to be preserved")
	}
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		code int
		min  int
		max  int
	}{
		{"CodeUnauthorized", CodeUnauthorized, 1000, 1099},
		{"CodeForbidden", CodeForbidden, 1000, 1099},
		{"CodeParamMissing", CodeParamMissing, 2000, 2099},
		{"CodeParamInvalid", CodeParamInvalid, 2000, 2099},
		{"CodeNotFound", CodeNotFound, 3000, 3999},
		{"CodeRouteNotFound", CodeRouteNotFound, 3000, 3999},
		{"CodeStateConflict", CodeStateConflict, 3000, 3999},
		{"CodeInternalError", CodeInternalError, 5000, 5999},
		{"CodeDatabaseError", CodeDatabaseError, 5000, 5999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.code < tt.min || tt.code > tt.max {
				t.Errorf("%s = %d, expected to be in range [%d, %d]", tt.name, tt.code, tt.min, tt.max)
			}
		})
	}
}
