package main

import (
	"bytes"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/p-n-ai/pai-lesson/internal/httpapi"
	"github.com/p-n-ai/pai-lesson/internal/lesson/schema"
	"github.com/p-n-ai/pai-lesson/internal/records"
)

type mapCatalog map[string]schema.Document

func (c mapCatalog) GetModule(id string) (schema.Document, bool) {
	doc, ok := c[id]
	return doc, ok
}

func (c mapCatalog) CourseModules(courseID string) []schema.Document {
	var out []schema.Document
	for _, doc := range c {
		if doc.CourseID == courseID {
			out = append(out, doc)
		}
	}
	return out
}

var catalog = mapCatalog{
	"m1": {
		ModuleID: "m1",
		CourseID: "c1",
		Title:    "First steps",
		VideoURL: "https://example.com/v.mp4",
		Fields: []schema.FieldDefinition{
			{Name: "about", Type: schema.TypeSubtitle, Label: "About you"},
			{Name: "goal", Type: schema.TypeShortText, Label: "Your goal", Required: true},
			{Name: "topics", Type: schema.TypeMultiSelect, Label: "Topics", Options: []string{"a", "b"}},
		},
	},
}

type harness struct {
	t      *testing.T
	server *httptest.Server
	svc    *records.Service
	drafts string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	svc := records.NewService(records.NewMemoryRepository(), catalog)
	srv := httptest.NewServer(httpapi.New(svc, nil).Handler())
	t.Cleanup(srv.Close)
	return &harness{
		t:      t,
		server: srv,
		svc:    svc,
		drafts: filepath.Join(t.TempDir(), "drafts.db"),
	}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(append([]string{
		"--remote", h.server.URL,
		"--user", "u1",
		"--drafts", h.drafts,
		"--autosave-delay", "10ms",
		"--log-level", "error",
	}, args...))
	err := cmd.ExecuteContext(h.t.Context())
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	if err != nil {
		h.t.Fatalf("lessonctl %v error = %v\noutput:\n%s", args, err, out)
	}
	return out
}

func assertContains(t *testing.T, out string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPlanCommand(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun("plan", "-v", "m1")
	assertContains(t, out,
		"First steps (m1)",
		"[>] 1. Video",
		"[ ] 2. About you",
		"[ ] 3. Complete",
		"Your goal *",
		"Progress: 0/2 answered (0%)",
	)
}

func TestSetAutosavesAndRestores(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("set", "m1", "goal=ship it", "topics=a, b")
	assertContains(t, out, "Saved locally.", "Autosaved: submitted", "Progress: 2/2 answered (100%)")

	rec, err := h.svc.Record(t.Context(), "u1", "m1")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if rec.Answers["goal"] != "ship it" {
		t.Errorf("server goal = %v, want %q", rec.Answers["goal"], "ship it")
	}

	out = h.mustRun("goto", "m1", "2")
	assertContains(t, out, "Step 2 of 3: About you", `"ship it"`, "a, b")
}

func TestSetRejectsUnknownField(t *testing.T) {
	h := newHarness(t)
	if _, err := h.run("set", "m1", "nope=1"); err == nil || !strings.Contains(err.Error(), "nope") {
		t.Errorf("error = %v, want unknown field error", err)
	}
	if _, err := h.run("set", "m1", "goal"); err == nil {
		t.Error("expected error for missing '='")
	}
}

func TestNavigationPersistsAndCompletes(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("next", "m1")
	assertContains(t, out, "Step 2 of 3")

	out = h.mustRun("show", "m1")
	assertContains(t, out, "Step 2 of 3")

	out = h.mustRun("next", "m1")
	assertContains(t, out, "Step 3 of 3: Complete", "Module complete.")

	completed, total, err := h.svc.CourseProgress(t.Context(), "u1", "c1")
	if err != nil {
		t.Fatalf("CourseProgress() error = %v", err)
	}
	if completed != 1 || total != 1 {
		t.Errorf("CourseProgress() = %d/%d, want 1/1", completed, total)
	}

	out = h.mustRun("prev", "m1")
	assertContains(t, out, "Step 2 of 3")
}

func TestSubmitCommand(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("submit", "m1")
	if err == nil {
		t.Fatal("expected submit to fail with empty required field")
	}
	assertContains(t, out, "missing: Your goal")

	h.mustRun("set", "--no-wait", "m1", "goal=learn")
	out = h.mustRun("submit", "m1")
	assertContains(t, out, "Submitted: submitted")

	out = h.mustRun("status", "m1")
	assertContains(t, out, "Status: submitted", "About you: 1/2")
}

func TestRequiresUser(t *testing.T) {
	h := newHarness(t)
	var out bytes.Buffer
	cmd := newRootCmd(&out, &out)
	cmd.SetArgs([]string{"--remote", h.server.URL, "--user", "", "--drafts", h.drafts, "show", "m1"})
	if err := cmd.ExecuteContext(t.Context()); err == nil {
		t.Error("expected error without a learner ID")
	}
}

func TestUnreachableServer(t *testing.T) {
	if testing.Short() {
		t.Skip("dials a closed port")
	}
	h := newHarness(t)
	h.server.Close()
	if _, err := h.run("show", "m1"); err == nil {
		t.Error("expected error when the server is down")
	}
}
