package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/marmos91/vxi11/internal/poller"
)

type fixedStatus poller.Status

func (f fixedStatus) Status() poller.Status { return poller.Status(f) }

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp
}

func TestLiveness_ReturnsOK(t *testing.T) {
	handler := NewHealthHandler(nil)
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	handler.Liveness(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	resp := decode(t, w)
	if resp.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got '%s'", resp.Status)
	}

	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected Data to be a map, got %T", resp.Data)
	}
	if data["service"] != "vxi11ctl" {
		t.Errorf("Expected service 'vxi11ctl', got '%s'", data["service"])
	}
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name       string
		source     StatusSource
		wantCode   int
		wantStatus string
		wantError  string
	}{
		{
			name:       "no poller",
			source:     nil,
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
			wantError:  "poller not initialized",
		},
		{
			name:       "not linked",
			source:     fixedStatus{Host: "scope"},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
			wantError:  "instrument not linked",
		},
		{
			name:       "last poll failed",
			source:     fixedStatus{Linked: true, LastSuccess: time.Now(), LastError: "vxi11: device_read: I/O timeout"},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
			wantError:  "vxi11: device_read: I/O timeout",
		},
		{
			name:       "linked but never polled",
			source:     fixedStatus{Linked: true},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
			wantError:  "no successful poll yet",
		},
		{
			name:       "healthy",
			source:     fixedStatus{Linked: true, LinkID: 7, Polls: 3, LastSuccess: time.Now()},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(tt.source)
			req := httptest.NewRequest("GET", "/health/ready", nil)
			w := httptest.NewRecorder()

			handler.Readiness(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d", tt.wantCode, w.Code)
			}
			resp := decode(t, w)
			if resp.Status != tt.wantStatus {
				t.Errorf("Expected status '%s', got '%s'", tt.wantStatus, resp.Status)
			}
			if resp.Error != tt.wantError {
				t.Errorf("Expected error '%s', got '%s'", tt.wantError, resp.Error)
			}
		})
	}
}

func TestInstrument_ReturnsStatus(t *testing.T) {
	handler := NewHealthHandler(fixedStatus{Host: "scope", Device: "inst0", Polls: 5, Failures: 2})
	req := httptest.NewRequest("GET", "/health/instrument", nil)
	w := httptest.NewRecorder()

	handler.Instrument(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	data, ok := decode(t, w).Data.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected Data to be a map")
	}
	if data["host"] != "scope" || data["device"] != "inst0" {
		t.Errorf("Unexpected instrument identity: %v", data)
	}
	if data["polls"] != float64(5) || data["failures"] != float64(2) {
		t.Errorf("Unexpected counters: %v", data)
	}
}
