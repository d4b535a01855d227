package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConstructors_StatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		status int
		code   string
	}{
		{"validation", ValidationError("x"), http.StatusBadRequest, CodeValidationError},
		{"unauthorized", Unauthorized("x"), http.StatusUnauthorized, CodeUnauthorized},
		{"invalid credentials", InvalidCredentials("x"), http.StatusUnauthorized, CodeInvalidCredentials},
		{"invalid token", InvalidToken("x"), http.StatusUnauthorized, CodeInvalidToken},
		{"token reused", TokenReused(), http.StatusUnauthorized, CodeTokenReused},
		{"not found", NotFound("x"), http.StatusNotFound, CodeNotFound},
		{"conflict", Conflict("x"), http.StatusConflict, CodeConflict},
		{"upload", UploadError("x"), http.StatusBadRequest, CodeUploadError},
		{"internal", InternalError("x"), http.StatusInternalServerError, CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.HTTPStatus != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, tt.err.HTTPStatus)
			}
			if tt.err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, tt.err.Code)
			}
		})
	}
}

func TestWriteError_AppError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, "req-1", Conflict("user with username or email already exists"))

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if got := w.Header().Get(RequestIDHeader); got != "req-1" {
		t.Errorf("expected request id header req-1, got %q", got)
	}

	var body Envelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Status != http.StatusConflict || body.Success {
		t.Errorf("unexpected envelope: %+v", body)
	}
	if body.Message != "user with username or email already exists" {
		t.Errorf("unexpected message %q", body.Message)
	}
}

func TestWriteError_WrappedAppError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, "", fmt.Errorf("context: %w", NotFound("user does not exist")))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestWriteError_UnknownErrorIsInternal(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, "", fmt.Errorf("pq: connection refused"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var body Envelope
	json.NewDecoder(w.Body).Decode(&body)
	if body.Message != "an unexpected error occurred" {
		t.Errorf("internal details leaked: %q", body.Message)
	}
}

func TestWriteJSON_Envelope(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, "", http.StatusCreated, map[string]string{"username": "alice"}, "User registered successfully")

	var body struct {
		Status  int               `json:"status"`
		Data    map[string]string `json:"data"`
		Message string            `json:"message"`
		Success bool              `json:"success"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Status != http.StatusCreated || !body.Success || body.Data["username"] != "alice" {
		t.Errorf("unexpected envelope: %+v", body)
	}
}

func TestHandleFunc_RendersReturnedError(t *testing.T) {
	h := RequestIDMiddleware(HandleFunc(func(w http.ResponseWriter, r *http.Request) error {
		return Unauthorized("unauthorized request")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	var body Envelope
	json.NewDecoder(w.Body).Decode(&body)
	if body.RequestID != "abc" {
		t.Errorf("expected request id abc, got %q", body.RequestID)
	}
}
