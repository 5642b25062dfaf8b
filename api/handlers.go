package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"convdep/domain/conversation"
	"convdep/domain/core"
	"convdep/internal/analyzer"
	apperrors "convdep/internal/errors"
	"convdep/internal/report"
)

// AnalyzeRequest is the shared request body for analysis routes.
// ConversationID is required only on anchor-aware routes.
type AnalyzeRequest struct {
	ConversationID string                        `json:"conversation_id,omitempty"`
	History        []conversation.Utterance      `json:"history"`
	Current        conversation.Utterance        `json:"current"`
	Options        *conversation.AnalyzerOptions `json:"options,omitempty"`
}

// AnalyzeResponse is the analysis result plus its dependency records.
type AnalyzeResponse struct {
	AnalysisID   core.AnalysisID                `json:"analysis_id"`
	Important    []conversation.ScoredUtterance `json:"important"`
	Scored       []conversation.ScoredUtterance `json:"scored"`
	AnchorCount  int                            `json:"anchor_count"`
	Dependencies []conversation.Dependency      `json:"dependencies"`
	Summary      report.Summary                 `json:"summary"`
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeAnalyzeRequest(w, r)
	if !ok {
		return
	}

	res, err := a.analyzer.Analyze(r.Context(), req.History, req.Current, a.options(req))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.buildResponse(req, res))
}

func (a *App) handleAnalyzeWithAnchors(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeAnalyzeRequest(w, r)
	if !ok {
		return
	}
	conversationID, err := core.ParseConversationID(req.ConversationID)
	if err != nil {
		a.writeError(w, apperrors.InvalidInput(err.Error()))
		return
	}

	store, err := a.store(conversationID.String())
	if err != nil {
		a.writeError(w, err)
		return
	}

	res, err := a.analyzer.AnalyzeWithAnchors(r.Context(), req.History, req.Current, store, a.options(req))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.buildResponse(req, res))
}

func (a *App) handleListAnchors(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	store, err := a.store(conversationID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	anchors, err := store.All(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": conversationID,
		"anchors":         anchors,
		"count":           len(anchors),
	})
}

// handleReport runs an analysis and renders it as markdown or, with
// ?format=html, as HTML.
func (a *App) handleReport(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeAnalyzeRequest(w, r)
	if !ok {
		return
	}

	res, err := a.analyzer.Analyze(r.Context(), req.History, req.Current, a.options(req))
	if err != nil {
		a.writeError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "html" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(report.HTML(req.Current, res))
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	fmt.Fprint(w, report.Markdown(req.Current, res))
}

// handleExport runs an analysis and returns the workbook. The workbook is
// built into a buffer first so an export failure surfaces as a JSON error
// instead of a truncated attachment.
func (a *App) handleExport(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeAnalyzeRequest(w, r)
	if !ok {
		return
	}

	res, err := a.analyzer.Analyze(r.Context(), req.History, req.Current, a.options(req))
	if err != nil {
		a.writeError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := a.exporter.Write(&buf, req.Current, res); err != nil {
		a.writeError(w, apperrors.Wrap(err, "workbook export failed"))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=turn-%d.xlsx", req.Current.ID))
	w.Write(buf.Bytes())
}

func (a *App) decodeAnalyzeRequest(w http.ResponseWriter, r *http.Request) (*AnalyzeRequest, bool) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, apperrors.InvalidInput("malformed request body: "+err.Error()))
		return nil, false
	}
	return &req, true
}

// options merges per-call overrides field by field over the server
// defaults, so a request that sets one knob keeps the env-configured rest.
func (a *App) options(req *AnalyzeRequest) conversation.AnalyzerOptions {
	if req.Options == nil {
		return a.defaults
	}
	return req.Options.WithDefaults(a.defaults)
}

func (a *App) buildResponse(req *AnalyzeRequest, res *analyzer.Result) AnalyzeResponse {
	return AnalyzeResponse{
		AnalysisID:   core.AnalysisID(core.NewID()),
		Important:    res.Important,
		Scored:       res.Scored,
		AnchorCount:  res.AnchorCount,
		Dependencies: analyzer.Dependencies(req.Current, res.Important),
		Summary:      report.Summarize(res),
	}
}

func (a *App) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.log.Error("request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  apperrors.GetCode(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
