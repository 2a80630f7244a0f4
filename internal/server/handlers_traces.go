package server

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/tracehub-ai/tracehub/internal/model"
)

// HandleListTraces returns a filtered, paginated trace listing.
func (h *Handlers) HandleListTraces(w http.ResponseWriter, r *http.Request) {
	project, err := h.project(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	page, pageSize, err := pagination(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	startTime, err := queryTime(r, "start_time")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	endTime, err := queryTime(r, "end_time")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	filters := model.TraceListFilters{
		StartTime:   startTime,
		EndTime:     endTime,
		Status:      queryStr(r, "status"),
		Tag:         queryStr(r, "tag"),
		Model:       queryStr(r, "model"),
		Environment: queryStr(r, "environment"),
		UserID:      queryStr(r, "user_id"),
		SessionID:   queryStr(r, "session_id"),
		Search:      queryStr(r, "search"),
	}

	items, total, err := h.db.Store().ListTraces(r.Context(), project.ID, filters, page, pageSize)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.Page{
		Items:    items,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	})
}

// HandleGetTrace returns one trace with its spans, unified timeline,
// evaluations, and decision history.
func (h *Handlers) HandleGetTrace(w http.ResponseWriter, r *http.Request) {
	project, err := h.project(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	traceID, err := pathUUID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	store := h.db.Store()
	trace, err := store.GetTrace(r.Context(), project.ID, traceID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	spans, err := store.ListSpansByTrace(r.Context(), project.ID, traceID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	events, err := store.ListSpanEventsByTrace(r.Context(), project.ID, traceID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	evals, err := store.ListEvaluationsByTrace(r.Context(), project.ID, traceID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	decisions, err := store.ListTraceDecisions(r.Context(), project.ID, traceID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	runs, err := store.ListJudgeRunsByTrace(r.Context(), project.ID, traceID, 50)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, model.TraceDetail{
		Trace:           trace,
		Spans:           spans,
		Timeline:        buildTimeline(trace, events),
		Evaluations:     evals,
		DecisionHistory: decisions,
		JudgeRuns:       runs,
	})
}

// buildTimeline interleaves synthetic trace lifecycle markers with the span
// event stream, stably ordered by timestamp.
func buildTimeline(trace model.Trace, events []model.SpanEvent) []model.TimelineEntry {
	entries := make([]model.TimelineEntry, 0, len(events)+2)

	entries = append(entries, model.TimelineEntry{
		Timestamp: trace.StartTime,
		Source:    "trace",
		EventType: "TRACE_STARTED",
		Payload:   model.JSONMap{"status": string(trace.Status)},
	})
	for _, ev := range events {
		spanID := ev.SpanID
		entries = append(entries, model.TimelineEntry{
			Timestamp: ev.EventTime,
			Source:    "span",
			SourceID:  spanID,
			EventType: string(ev.EventType),
			Payload:   ev.Payload,
		})
	}
	if trace.EndTime != nil {
		entries = append(entries, model.TimelineEntry{
			Timestamp: *trace.EndTime,
			Source:    "trace",
			EventType: "TRACE_ENDED",
			Payload:   model.JSONMap{"status": string(trace.Status)},
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries
}

// HandleTraceStats returns status counts for a recent window.
func (h *Handlers) HandleTraceStats(w http.ResponseWriter, r *http.Request) {
	project, err := h.project(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	lastHours := 24
	if v := r.URL.Query().Get("last_hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 168 {
			writeServiceError(w, r, model.Validationf("last_hours must be between 1 and 168"))
			return
		}
		lastHours = n
	}

	stats, err := h.db.Store().TraceStats(r.Context(), project.ID, lastHours)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}
