package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/MrWong99/tartil/internal/analysis"
	"github.com/MrWong99/tartil/internal/history"
	"github.com/MrWong99/tartil/internal/observe"
	"github.com/MrWong99/tartil/internal/tajweed"
	"github.com/MrWong99/tartil/pkg/audio"
	"github.com/MrWong99/tartil/pkg/types"
)

// BestOfRequest is the body of POST /v1/analyze/best-of.
type BestOfRequest struct {
	Recitation analysis.Recitation  `json:"recitation"`
	References []analysis.Reference `json:"references"`
}

// RuleResponse is one entry of GET /v1/rules/{id}.
type RuleResponse struct {
	tajweed.Rule
	Explanation string `json:"explanation"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

type handlers struct {
	analyzer *analysis.Analyzer
	history  history.Store
	dims     int
	maxBody  int64
	logger   *slog.Logger
	metrics  *observe.Metrics
}

func (h *handlers) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/analyze", h.handleAnalyze)
	mux.HandleFunc("POST /v1/analyze/best-of", h.handleBestOf)
	mux.HandleFunc("POST /v1/analyze/audio", h.handleAudio)
	mux.HandleFunc("GET /v1/rules", h.handleRules)
	mux.HandleFunc("GET /v1/rules/{id}", h.handleRule)
	if h.history != nil {
		mux.HandleFunc("GET /v1/history", h.handleHistory)
		mux.HandleFunc("GET /v1/history/{id}", h.handleRecord)
		mux.HandleFunc("GET /v1/history/{id}/similar", h.handleSimilar)
		mux.HandleFunc("GET /v1/progress", h.handleProgress)
	}
}

// handleAnalyze scores one recitation against one reference.
func (h *handlers) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analysis.Request
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.analyzer.Analyze(r.Context(), req)
	if err != nil {
		h.writeAnalysisError(w, r, err)
		return
	}
	h.save(r.Context(), res, req.Reference.Text, req.Recitation.Features)
	writeJSON(w, http.StatusOK, res)
}

// handleBestOf scores one recitation against several references.
func (h *handlers) handleBestOf(w http.ResponseWriter, r *http.Request) {
	var req BestOfRequest
	if !h.decode(w, r, &req) {
		return
	}
	best, err := h.analyzer.AnalyzeBestOf(r.Context(), req.Recitation, req.References)
	if err != nil {
		h.writeAnalysisError(w, r, err)
		return
	}
	h.save(r.Context(), best.Result, req.References[best.Index].Text, req.Recitation.Features)
	writeJSON(w, http.StatusOK, best)
}

// handleAudio analyses a recording. The multipart form carries:
//
//   - "audio": the WAV recording of the recitation (required)
//   - "reference": a reference as JSON (repeatable)
//   - "reference_audio": a WAV recording of a reference (repeatable)
//   - "text": the reference text of every "reference_audio"
//
// With more than one reference the response is an [analysis.Best].
func (h *handlers) handleAudio(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeDecodeError(w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()
	form := r.MultipartForm

	rec, err := formWAV(form, "audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	refs, err := h.formReferences(ctx, form)
	if err != nil {
		h.writeAnalysisError(w, r, err)
		return
	}

	recitation, _, err := h.analyzer.Capture(ctx, rec, refs[0].Text)
	if err != nil {
		h.writeAnalysisError(w, r, err)
		return
	}
	if len(refs) == 1 {
		res, err := h.analyzer.Analyze(ctx, analysis.Request{Recitation: recitation, Reference: refs[0]})
		if err != nil {
			h.writeAnalysisError(w, r, err)
			return
		}
		h.save(ctx, res, refs[0].Text, recitation.Features)
		writeJSON(w, http.StatusOK, res)
		return
	}
	best, err := h.analyzer.AnalyzeBestOf(ctx, recitation, refs)
	if err != nil {
		h.writeAnalysisError(w, r, err)
		return
	}
	h.save(ctx, best.Result, refs[best.Index].Text, recitation.Features)
	writeJSON(w, http.StatusOK, best)
}

// formReferences collects the references of an audio request.
func (h *handlers) formReferences(ctx context.Context, form *multipart.Form) ([]analysis.Reference, error) {
	var refs []analysis.Reference
	for i, raw := range form.Value["reference"] {
		var ref analysis.Reference
		if err := json.Unmarshal([]byte(raw), &ref); err != nil {
			return nil, types.NewInputError("server", "reference %d: %v", i, err)
		}
		refs = append(refs, ref)
	}
	files := form.File["reference_audio"]
	if len(files) > 0 {
		text := firstValue(form, "text")
		if text == "" {
			return nil, types.NewInputError("server", "reference_audio requires text")
		}
		for i, fh := range files {
			a, err := decodeWAV(fh)
			if err != nil {
				return nil, types.NewInputError("server", "reference_audio %d: %v", i, err)
			}
			ref, err := h.analyzer.PrepareReference(ctx, a, text)
			if err != nil {
				return nil, err
			}
			refs = append(refs, ref)
		}
	}
	if len(refs) == 0 {
		return nil, types.NewInputError("server", "at least one reference or reference_audio is required")
	}
	return refs, nil
}

// handleRules lists the rule catalog, optionally filtered by ?category=.
func (h *handlers) handleRules(w http.ResponseWriter, r *http.Request) {
	engine := h.analyzer.Engine()
	if engine == nil {
		writeError(w, http.StatusNotFound, "tajweed rule checking is disabled")
		return
	}
	rules := engine.Catalog().Rules()
	if name := r.URL.Query().Get("category"); name != "" {
		c, err := tajweed.ParseCategory(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		rules = engine.RulesByCategory(c)
	}
	writeJSON(w, http.StatusOK, rules)
}

// handleRule returns one rule with its explanation.
func (h *handlers) handleRule(w http.ResponseWriter, r *http.Request) {
	engine := h.analyzer.Engine()
	if engine == nil {
		writeError(w, http.StatusNotFound, "tajweed rule checking is disabled")
		return
	}
	id := r.PathValue("id")
	rule, err := engine.Rule(id)
	if err != nil {
		if errors.Is(err, tajweed.ErrRuleNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	explanation, err := engine.Explain(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, RuleResponse{Rule: rule, Explanation: explanation})
}

// decode reads a JSON body into v, writing the error response itself and
// reporting false when that fails.
func (h *handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeDecodeError(w, err)
		return false
	}
	return true
}

// writeAnalysisError maps an analysis error to its status code.
func (h *handlers) writeAnalysisError(w http.ResponseWriter, r *http.Request, err error) {
	var ce *analysis.CollaboratorError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrInput):
		status = http.StatusBadRequest
	case errors.As(err, &ce):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// The client went away; nobody reads the response.
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "analysis failed", "path", r.URL.Path, "status", status, "err", err)
	}
	writeError(w, status, err.Error())
}

func writeDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return
	}
	writeError(w, http.StatusBadRequest, "decode request: "+err.Error())
}

func formWAV(form *multipart.Form, field string) (types.Audio, error) {
	files := form.File[field]
	if len(files) == 0 {
		return types.Audio{}, fmt.Errorf("missing %q file", field)
	}
	a, err := decodeWAV(files[0])
	if err != nil {
		return types.Audio{}, fmt.Errorf("%s: %w", field, err)
	}
	return a, nil
}

func decodeWAV(fh *multipart.FileHeader) (types.Audio, error) {
	f, err := fh.Open()
	if err != nil {
		return types.Audio{}, err
	}
	defer f.Close()
	return audio.DecodeWAV(f)
}

func firstValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
