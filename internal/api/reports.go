package api

import (
	"net/http"
	"path"
	"strconv"

	"taxsync-pro/internal/model"
	"taxsync-pro/internal/report"
)

type reportRequest struct {
	UserID   string `json:"userId"`
	Language string `json:"language"`
}

// generateReport renders the tax-optimization report for the user's stored
// snapshot as an attachment.
func (s *server) generateReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.UserID == "" {
		writeError(w, r, &model.ValidationError{Field: "userId", Reason: "required"})
		return
	}
	if req.Language == "" {
		req.Language = "en"
	}

	holdings, err := s.Snapshots.ReadPortfolio(r.Context(), req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(holdings) == 0 {
		writeError(w, r, errNoData)
		return
	}
	opps, err := s.Snapshots.ReadOpportunities(r.Context(), req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	score, _, err := s.score(r.Context(), req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rep := report.Build(req.UserID, holdings, opps, score, req.Language, s.Now())
	rep.Language = req.Language
	body, contentType, err := s.Renderer.Render(r.Context(), rep)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ext := "json"
	if contentType != "application/json" {
		ext = path.Base(contentType)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+report.Filename(rep, ext)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
