package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/p-n-ai/pai-lesson/internal/drafts"
	"github.com/p-n-ai/pai-lesson/internal/export"
	"github.com/p-n-ai/pai-lesson/internal/lesson/answers"
	"github.com/p-n-ai/pai-lesson/internal/lesson/plan"
)

const draftTimeout = 2 * time.Second

func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	doc, err := s.svc.Module(r.PathValue("moduleID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type stepResponse struct {
	ID        string   `json:"id"`
	Kind      string   `json:"kind"`
	Index     int      `json:"index"`
	SectionID string   `json:"sectionId,omitempty"`
	Title     string   `json:"title,omitempty"`
	Fields    []string `json:"fields,omitempty"`
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	doc, err := s.svc.Module(r.PathValue("moduleID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	p := s.deriver.Derive(doc.Fields, doc.Media())
	steps := make([]stepResponse, 0, p.Len())
	for _, st := range p.Steps {
		resp := stepResponse{ID: st.ID(), Kind: st.Kind.String(), Index: st.Index}
		if sec, ok := p.Section(st.SectionID); ok && st.Kind == plan.StepAssignment {
			resp.SectionID = sec.ID
			resp.Title = sec.Title
			for _, f := range sec.Fields {
				resp.Fields = append(resp.Fields, f.Name)
			}
		}
		steps = append(steps, resp)
	}
	writeJSON(w, http.StatusOK, map[string]any{"moduleId": doc.ModuleID, "steps": steps})
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request, userID string) {
	rec, err := s.svc.Record(r.Context(), userID, r.PathValue("moduleID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type submitRequest struct {
	Answers answers.Values `json:"answers"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, userID string) {
	var req submitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.svc.Submit(r.Context(), userID, r.PathValue("moduleID"), req.Answers)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request, userID string) {
	if err := s.svc.Complete(r.Context(), userID, r.PathValue("moduleID")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type progressResponse struct {
	CourseID  string `json:"courseId"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

func (s *Server) handleCourseProgress(w http.ResponseWriter, r *http.Request, userID string) {
	courseID := r.PathValue("courseID")
	completed, total, err := s.svc.CourseProgress(r.Context(), userID, courseID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progressResponse{CourseID: courseID, Completed: completed, Total: total})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	moduleID := r.PathValue("moduleID")
	doc, subs, err := s.svc.Submissions(r.Context(), moduleID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteSubmissions(&buf, doc, subs); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-submissions.xlsx"`, moduleID))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request, userID string) {
	ctx, cancel := context.WithTimeout(r.Context(), draftTimeout)
	defer cancel()

	d, ok, err := s.drafts(userID).LoadDraft(ctx, r.PathValue("moduleID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no draft")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handlePutDraft(w http.ResponseWriter, r *http.Request, userID string) {
	var d drafts.Draft
	if !decodeBody(w, r, &d) {
		return
	}
	if d.SavedAt.IsZero() {
		d.SavedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(r.Context(), draftTimeout)
	defer cancel()
	if err := s.drafts(userID).SaveDraft(ctx, r.PathValue("moduleID"), d); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type positionBody struct {
	Index int `json:"index"`
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request, userID string) {
	ctx, cancel := context.WithTimeout(r.Context(), draftTimeout)
	defer cancel()

	index, _, err := s.drafts(userID).LoadPosition(ctx, r.PathValue("moduleID"))
	if err != nil {
		slog.Warn("loading position failed", "user_id", userID, "error", err)
		index = 0
	}
	writeJSON(w, http.StatusOK, positionBody{Index: index})
}

func (s *Server) handlePutPosition(w http.ResponseWriter, r *http.Request, userID string) {
	var body positionBody
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Index < 0 {
		writeError(w, http.StatusBadRequest, "index must not be negative")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), draftTimeout)
	defer cancel()
	if err := s.drafts(userID).SavePosition(ctx, r.PathValue("moduleID"), body.Index); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
