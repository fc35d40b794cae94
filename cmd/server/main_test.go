package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/p-n-ai/pai-lesson/internal/platform/config"
)

const testModule = `
module_id: intro
course_id: basics
title: Introduction
video_url: https://example.com/intro.mp4
fields:
  - name: goal
    type: short_text
    label: Your goal
    required: true
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "intro.yaml"), []byte(testModule), 0o644); err != nil {
		t.Fatalf("write module: %v", err)
	}
	return &config.Config{
		Server:     config.ServerConfig{Port: 8080},
		Log:        config.LogConfig{Level: "info", Format: "json"},
		FieldsPath: dir,
	}
}

func TestHealthEndpoints(t *testing.T) {
	a, err := newApp(t.Context(), testConfig(t))
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.Close()

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "healthz returns 200",
			path:       "/healthz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
		{
			name:       "readyz returns 200",
			path:       "/readyz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()

			a.handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestAppServesModules(t *testing.T) {
	a, err := newApp(t.Context(), testConfig(t))
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.Close()

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"fields", http.MethodGet, "/modules/intro/fields", "", http.StatusOK},
		{"unknown module", http.MethodGet, "/modules/nope/fields", "", http.StatusNotFound},
		{"rejected submit", http.MethodPost, "/modules/intro/assignment-submission", `{"answers":{}}`, http.StatusUnprocessableEntity},
		{"submit", http.MethodPost, "/modules/intro/assignment-submission", `{"answers":{"goal":"learn"}}`, http.StatusOK},
		{"complete", http.MethodPost, "/modules/intro/complete", "", http.StatusNoContent},
		{"draft slot", http.MethodPut, "/modules/intro/position", `{"index":1}`, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("X-User-ID", "u1")
			rec := httptest.NewRecorder()

			a.handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestMemoryDraftsPerUser(t *testing.T) {
	m := newMemoryDrafts()
	ctx := t.Context()

	if err := m.get("u1").SavePosition(ctx, "intro", 2); err != nil {
		t.Fatalf("SavePosition() error = %v", err)
	}
	if _, ok, _ := m.get("u2").LoadPosition(ctx, "intro"); ok {
		t.Error("u2 sees u1's position")
	}
	if got, ok, _ := m.get("u1").LoadPosition(ctx, "intro"); !ok || got != 2 {
		t.Errorf("LoadPosition() = %d, %v, want 2, true", got, ok)
	}
}
