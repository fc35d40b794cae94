package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-lesson/internal/drafts"
	"github.com/p-n-ai/pai-lesson/internal/export"
	"github.com/p-n-ai/pai-lesson/internal/httpapi"
	"github.com/p-n-ai/pai-lesson/internal/lesson/answers"
	"github.com/p-n-ai/pai-lesson/internal/lesson/schema"
	"github.com/p-n-ai/pai-lesson/internal/lesson/submission"
	"github.com/p-n-ai/pai-lesson/internal/records"
)

type mapCatalog map[string]schema.Document

func (c mapCatalog) GetModule(id string) (schema.Document, bool) {
	doc, ok := c[id]
	return doc, ok
}

func (c mapCatalog) CourseModules(courseID string) []schema.Document {
	var out []schema.Document
	for _, id := range []string{"m1", "m2"} {
		if doc, ok := c[id]; ok && doc.CourseID == courseID {
			out = append(out, doc)
		}
	}
	return out
}

var catalog = mapCatalog{
	"m1": {
		ModuleID: "m1",
		CourseID: "c1",
		VideoURL: "https://example.com/v.mp4",
		Fields: []schema.FieldDefinition{
			{Name: "plan", Type: schema.TypeSubtitle, Label: "Your plan"},
			{Name: "goal", Type: schema.TypeShortText, Label: "Your goal", Required: true},
			{Name: "topics", Type: schema.TypeMultiSelect, Label: "Topics", Options: []string{"a", "b"}},
		},
	},
	"m2": {
		ModuleID: "m2",
		CourseID: "c1",
		Fields:   []schema.FieldDefinition{{Name: "q", Type: schema.TypeShortText}},
	},
}

type stores struct {
	mu  sync.Mutex
	all map[string]*drafts.MemoryStore
}

func (s *stores) get(userID string) drafts.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.all == nil {
		s.all = make(map[string]*drafts.MemoryStore)
	}
	st, ok := s.all[userID]
	if !ok {
		st = drafts.NewMemoryStore()
		s.all[userID] = st
	}
	return st
}

func newTestServer(t *testing.T, opts ...httpapi.Option) (*httptest.Server, *httpapi.Hub) {
	t.Helper()
	hub := httpapi.NewHub()
	svc := records.NewService(records.NewMemoryRepository(), catalog, records.WithNotifier(hub))
	st := &stores{}
	opts = append([]httpapi.Option{httpapi.WithDrafts(st.get)}, opts...)
	srv := httptest.NewServer(httpapi.New(svc, hub, opts...).Handler())
	t.Cleanup(srv.Close)
	return srv, hub
}

func doRequest(t *testing.T, method, url, userID, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, url, r)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthEndpoints(t *testing.T) {
	failing := httpapi.HealthCheck{
		Name:  "database",
		Check: func(context.Context) error { return errors.New("down") },
	}

	tests := []struct {
		name       string
		opts       []httpapi.Option
		path       string
		wantStatus int
		wantBody   string
	}{
		{"healthz", nil, "/healthz", http.StatusOK, `{"status":"ok"}`},
		{"readyz", nil, "/readyz", http.StatusOK, `{"status":"ready"}`},
		{"readyz failing", []httpapi.Option{httpapi.WithHealthChecks(failing)}, "/readyz", http.StatusServiceUnavailable, `{"check":"database","status":"unavailable"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.opts...)
			resp := doRequest(t, http.MethodGet, srv.URL+tt.path, "", "")
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			body, _ := io.ReadAll(resp.Body)
			if got := strings.TrimSpace(string(body)); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
		})
	}
}

func TestRequiresUser(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := doRequest(t, http.MethodGet, srv.URL+"/modules/m1/assignment-submission", "", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

type planBody struct {
	ModuleID string `json:"moduleId"`
	Steps    []struct {
		ID     string   `json:"id"`
		Kind   string   `json:"kind"`
		Index  int      `json:"index"`
		Title  string   `json:"title"`
		Fields []string `json:"fields"`
	} `json:"steps"`
}

func TestFieldsAndPlan(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/modules/m1/fields", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fields status = %d", resp.StatusCode)
	}
	doc := decode[schema.Document](t, resp)
	if diff := cmp.Diff(catalog["m1"].Fields, doc.Fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/modules/m1/plan", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("plan status = %d", resp.StatusCode)
	}
	body := decode[planBody](t, resp)

	if len(body.Steps) != 3 {
		t.Fatalf("len(steps) = %d, want 3: %+v", len(body.Steps), body.Steps)
	}
	var kinds []string
	for _, st := range body.Steps {
		kinds = append(kinds, st.Kind)
	}
	if diff := cmp.Diff([]string{"video", "assignment", "complete"}, kinds); diff != "" {
		t.Errorf("kinds mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"goal", "topics"}, body.Steps[1].Fields); diff != "" {
		t.Errorf("assignment fields mismatch (-want +got):\n%s", diff)
	}
	if body.Steps[1].ID != "assignment:section-1" || body.Steps[1].Title != "Your plan" {
		t.Errorf("assignment step = %+v", body.Steps[1])
	}
	if body.Steps[2].Index != 3 {
		t.Errorf("complete index = %d, want 3", body.Steps[2].Index)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/modules/nope/plan", "", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown module status = %d, want 404", resp.StatusCode)
	}
}

func TestSubmitRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doRequest(t, http.MethodPost, srv.URL+"/modules/m1/assignment-submission", "u1", `{"answers":{"topics":["a"]}}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	rejected := decode[submission.MissingFieldsError](t, resp)
	if diff := cmp.Diff([]string{"Your goal"}, rejected.Missing); diff != "" {
		t.Errorf("missing mismatch (-want +got):\n%s", diff)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/modules/m1/assignment-submission", "u1", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("record before submit status = %d, want 404", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodPost, srv.URL+"/modules/m1/assignment-submission", "u1", `{"answers":{"goal":"ship","topics":["a","b"]}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	res := decode[submission.Result](t, resp)
	if res.Status != submission.StatusSubmitted {
		t.Errorf("status = %q, want %q", res.Status, submission.StatusSubmitted)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/modules/m1/assignment-submission", "u1", "")
	rec := decode[submission.Record](t, resp)
	want := answers.Values{"goal": "ship", "topics": []string{"a", "b"}}
	if diff := cmp.Diff(want, answers.NormalizeAll(catalog["m1"].Fields, rec.Answers)); diff != "" {
		t.Errorf("answers mismatch (-want +got):\n%s", diff)
	}

	resp = doRequest(t, http.MethodPost, srv.URL+"/modules/m1/assignment-submission", "u1", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want 400", resp.StatusCode)
	}
}

func TestClientAgainstServer(t *testing.T) {
	srv, _ := newTestServer(t)
	client := submission.NewClient(srv.URL, submission.WithUserID("u1"))
	ctx := t.Context()

	doc, err := client.FetchModule(ctx, "m1")
	if err != nil {
		t.Fatalf("FetchModule() error = %v", err)
	}
	if doc.ModuleID != "m1" {
		t.Errorf("ModuleID = %q, want m1", doc.ModuleID)
	}

	if _, err := client.FetchRecord(ctx, "m1"); !errors.Is(err, submission.ErrNotFound) {
		t.Errorf("FetchRecord() error = %v, want ErrNotFound", err)
	}

	_, err = client.Submit(ctx, "m1", answers.Values{})
	var missing *submission.MissingFieldsError
	if !errors.As(err, &missing) {
		t.Fatalf("Submit() error = %v, want *MissingFieldsError", err)
	}

	if _, err := client.Submit(ctx, "m1", answers.Values{"goal": "ship"}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	for range 2 {
		if err := client.MarkModuleComplete(ctx, "m1"); err != nil {
			t.Fatalf("MarkModuleComplete() error = %v", err)
		}
	}

	resp := doRequest(t, http.MethodGet, srv.URL+"/courses/c1/progress", "u1", "")
	got := decode[map[string]any](t, resp)
	want := map[string]any{"courseId": "c1", "completed": 1.0, "total": 2.0}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}
}

func TestDraftEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/modules/m1/draft", "u1", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing draft status = %d, want 404", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodPut, srv.URL+"/modules/m1/draft", "u1", `{"values":{"goal":"wip"},"savedAt":"2026-03-01T10:00:00Z"}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("put draft status = %d, want 204", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/modules/m1/draft", "u1", "")
	d := decode[drafts.Draft](t, resp)
	if d.Values["goal"] != "wip" {
		t.Errorf("draft goal = %v, want wip", d.Values["goal"])
	}
	if !d.SavedAt.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("SavedAt = %v", d.SavedAt)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/modules/m1/draft", "u2", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("other user's draft status = %d, want 404", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodPut, srv.URL+"/modules/m1/position", "u1", `{"index":2}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("put position status = %d, want 204", resp.StatusCode)
	}
	resp = doRequest(t, http.MethodGet, srv.URL+"/modules/m1/position", "u1", "")
	if got := decode[map[string]int](t, resp)["index"]; got != 2 {
		t.Errorf("index = %d, want 2", got)
	}

	resp = doRequest(t, http.MethodPut, srv.URL+"/modules/m1/position", "u1", `{"index":-1}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("negative index status = %d, want 400", resp.StatusCode)
	}
}

func TestExportEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	doRequest(t, http.MethodPost, srv.URL+"/modules/m1/assignment-submission", "u1", `{"answers":{"goal":"ship"}}`)

	resp := doRequest(t, http.MethodGet, srv.URL+"/modules/m1/submissions.xlsx", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(export.SheetName)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if rows[1][0] != "u1" || rows[1][3] != "ship" {
		t.Errorf("row = %v", rows[1])
	}
}

func TestProgressFeed(t *testing.T) {
	srv, hub := newTestServer(t)
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/courses/c1/progress/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"X-User-ID": []string{"u1"}},
	})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.CloseNow()

	type progress struct {
		CourseID  string `json:"courseId"`
		Completed int    `json:"completed"`
		Total     int    `json:"total"`
	}
	var snap progress
	if err := wsjson.Read(ctx, conn, &snap); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if diff := cmp.Diff(progress{CourseID: "c1", Completed: 0, Total: 2}, snap); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	if n := hub.Subscribers("u1", "c1"); n != 1 {
		t.Fatalf("Subscribers() = %d, want 1", n)
	}

	resp := doRequest(t, http.MethodPost, srv.URL+"/modules/m2/complete", "u1", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("complete status = %d, want 204", resp.StatusCode)
	}

	var update progress
	if err := wsjson.Read(ctx, conn, &update); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if diff := cmp.Diff(progress{CourseID: "c1", Completed: 1, Total: 2}, update); diff != "" {
		t.Errorf("update mismatch (-want +got):\n%s", diff)
	}

	conn.Close(websocket.StatusNormalClosure, "")
}

// hookedRepository runs onProgress before the first completed-modules read.
type hookedRepository struct {
	*records.MemoryRepository
	once       sync.Once
	onProgress func()
}

func (r *hookedRepository) CompletedModules(ctx context.Context, userID string) ([]string, error) {
	r.once.Do(r.onProgress)
	return r.MemoryRepository.CompletedModules(ctx, userID)
}

func TestProgressFeed_CompletionDuringSnapshotDelivered(t *testing.T) {
	hub := httpapi.NewHub()
	repo := &hookedRepository{
		MemoryRepository: records.NewMemoryRepository(),
		onProgress: func() {
			hub.ModuleCompleted(records.Completion{UserID: "u1", CourseID: "c1", ModuleID: "m2", Completed: 1, Total: 2})
		},
	}
	svc := records.NewService(repo, catalog, records.WithNotifier(hub))
	srv := httptest.NewServer(httpapi.New(svc, hub).Handler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/courses/c1/progress/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"X-User-ID": []string{"u1"}},
	})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.CloseNow()

	var got []int
	for range 2 {
		var msg struct {
			Completed int `json:"completed"`
		}
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			t.Fatalf("read: %v (got %v so far)", err, got)
		}
		got = append(got, msg.Completed)
	}
	if diff := cmp.Diff([]int{0, 1}, got); diff != "" {
		t.Errorf("feed mismatch (-want +got):\n%s", diff)
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := httpapi.NewHub()
	ch, unsubscribe := hub.Subscribe("u1", "c1")

	for i := range 20 {
		hub.ModuleCompleted(records.Completion{UserID: "u1", CourseID: "c1", Completed: i})
	}
	hub.ModuleCompleted(records.Completion{UserID: "u2", CourseID: "c1"})

	if got := len(ch); got != cap(ch) {
		t.Errorf("buffered = %d, want %d", got, cap(ch))
	}
	unsubscribe()
	if n := hub.Subscribers("u1", "c1"); n != 0 {
		t.Errorf("Subscribers() after unsubscribe = %d, want 0", n)
	}
}
