package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"cairn/internal/agent"
	"cairn/internal/permission"
)

func TestSendJSON(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		data       any
		wantStatus int
		wantBody   string
	}{
		{
			name:       "send object",
			status:     http.StatusOK,
			data:       map[string]string{"key": "value"},
			wantStatus: http.StatusOK,
			wantBody:   `{"key":"value"}`,
		},
		{
			name:       "send nil",
			status:     http.StatusNoContent,
			data:       nil,
			wantStatus: http.StatusNoContent,
			wantBody:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			SendJSON(w, tt.status, tt.data)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}

			if tt.wantBody != "" {
				var got, want map[string]string
				_ = json.Unmarshal(w.Body.Bytes(), &got)
				_ = json.Unmarshal([]byte(tt.wantBody), &want)
				if got["key"] != want["key"] {
					t.Errorf("body = %s, want %s", w.Body.String(), tt.wantBody)
				}
			}

			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %s, want application/json", ct)
			}
		})
	}
}

func TestSendError(t *testing.T) {
	w := httptest.NewRecorder()
	SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "bad request")

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	if resp.Error.Code != ErrCodeInvalidRequest {
		t.Errorf("code = %s, want %s", resp.Error.Code, ErrCodeInvalidRequest)
	}

	if resp.Error.Message != "bad request" {
		t.Errorf("message = %s, want 'bad request'", resp.Error.Message)
	}
}

func TestSendAgentError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"empty input", agent.ErrEmptyInput, http.StatusBadRequest, ErrCodeInvalidRequest},
		{"bad mode", fmt.Errorf("%w: %q", permission.ErrInvalidMode, "x"), http.StatusBadRequest, ErrCodeInvalidRequest},
		{"missing thread", fmt.Errorf("load t1: %w", agent.ErrCheckpointNotFound), http.StatusNotFound, ErrCodeNotFound},
		{"wrong interrupt", agent.ErrInterruptMismatch, http.StatusConflict, ErrCodeConflict},
		{"paused thread", agent.ErrInterruptPending, http.StatusConflict, ErrCodeConflict},
		{"no store", agent.ErrNoCheckpointStore, http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
		{"rate limited", &agent.Error{Code: agent.CodeRateLimit, Message: "slow down"}, http.StatusTooManyRequests, agent.CodeRateLimit},
		{"timeout", &agent.Error{Code: agent.CodeTimeout, Message: "late"}, http.StatusGatewayTimeout, agent.CodeTimeout},
		{"model", &agent.Error{Code: agent.CodeModel, Message: "gone"}, http.StatusBadGateway, agent.CodeModel},
		{"agent", &agent.Error{Code: agent.CodeAgent, Message: "bad output"}, http.StatusUnprocessableEntity, agent.CodeAgent},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			SendAgentError(w, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("unmarshal error: %v", err)
			}
			if resp.Error.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", resp.Error.Code, tt.wantCode)
			}
		})
	}
}
