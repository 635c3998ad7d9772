package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/tartil/internal/analysis"
	"github.com/MrWong99/tartil/internal/history"
	"github.com/MrWong99/tartil/pkg/types"
)

const (
	defaultSimilar = 5
	maxSimilar     = 100
	saveTimeout    = 5 * time.Second
)

// save stores a finished analysis. Failures are logged; the analysis
// result is still returned to the caller.
func (h *handlers) save(ctx context.Context, res *analysis.Result, referenceText string, features types.FeatureSequence) {
	if h.history == nil || res == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	rec := history.NewRecord(res.ID, referenceText, res.Report, features, h.dims)
	err := h.history.Save(ctx, rec)
	h.metrics.RecordHistoryWrite(ctx, err)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to store analysis", "id", res.ID, "err", err)
	}
}

// handleHistory lists stored analyses, newest first. Query parameters:
// text, after and before (RFC 3339), limit.
func (h *handlers) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := history.ListOptions{ReferenceText: q.Get("text")}
	var err error
	if opts.After, err = parseTime(q.Get("after")); err != nil {
		writeError(w, http.StatusBadRequest, "after: "+err.Error())
		return
	}
	if opts.Before, err = parseTime(q.Get("before")); err != nil {
		writeError(w, http.StatusBadRequest, "before: "+err.Error())
		return
	}
	if opts.Limit, err = parseCount(q.Get("limit"), 0, 1000); err != nil {
		writeError(w, http.StatusBadRequest, "limit: "+err.Error())
		return
	}
	records, err := h.history.List(r.Context(), opts)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleRecord returns one stored analysis.
func (h *handlers) handleRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, err := h.history.Get(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleSimilar returns the stored analyses whose feature centroids are
// closest to that of {id}. ?k= bounds the result.
func (h *handlers) handleSimilar(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	k, err := parseCount(r.URL.Query().Get("k"), defaultSimilar, maxSimilar)
	if err != nil {
		writeError(w, http.StatusBadRequest, "k: "+err.Error())
		return
	}
	matches, err := h.history.Similar(r.Context(), id, k)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

// handleProgress summarises every stored analysis of ?text=.
func (h *handlers) handleProgress(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	if text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	p, err := h.history.Progress(r.Context(), text)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.logger.ErrorContext(r.Context(), "history query failed", "path", r.URL.Path, "err", err)
	writeError(w, http.StatusInternalServerError, "history store unavailable")
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid analysis id")
		return uuid.UUID{}, false
	}
	return id, true
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

// parseCount parses a positive count no larger than limit. An empty string
// yields def.
func parseCount(s string, def, limit int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 1 || n > limit {
		return 0, fmt.Errorf("%d is outside [1, %d]", n, limit)
	}
	return n, nil
}
