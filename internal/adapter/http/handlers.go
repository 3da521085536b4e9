package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/percept-io/percept/internal/domain"
	"github.com/percept-io/percept/internal/domain/classify"
	"github.com/percept-io/percept/internal/domain/intent"
	"github.com/percept-io/percept/internal/port/blobstore"
	"github.com/percept-io/percept/internal/port/registry"
	"github.com/percept-io/percept/internal/service"
)

const maxRequestBodySize = 1 << 20  // 1 MB for JSON bodies
const maxImageSize = 20 << 20       // 20 MB per uploaded image

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Orchestrator *service.Orchestrator
	Registry     registry.Registry
	Blobs        blobstore.Store
}

type errorResponse struct {
	Error string `json:"error"`
}

type submitResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

// submitRequest is the JSON body form of a submission, for clients that
// uploaded the image beforehand or reference an external object.
type submitRequest struct {
	ImageRef      string  `json:"image_ref"`
	Prompt        string  `json:"prompt"`
	MinConfidence float64 `json:"min_confidence"`
}

// SubmitClassification handles POST /api/v1/classify. It accepts either a
// multipart form (image file + prompt) or a JSON body referencing an
// already stored image. Returns 202 with the request ID to poll.
func (h *Handlers) SubmitClassification(w http.ResponseWriter, r *http.Request) {
	req := classify.Request{ID: uuid.NewString()}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := h.fillFromMultipart(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else {
		body, ok := readJSON[submitRequest](w, r)
		if !ok {
			return
		}
		req.ImageRef = body.ImageRef
		req.Prompt = body.Prompt
		req.MinConfidence = body.MinConfidence
	}

	st, err := h.Orchestrator.Submit(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{
		RequestID: st.Request.ID,
		Status:    string(st.Status),
	})
}

func (h *Handlers) fillFromMultipart(r *http.Request, req *classify.Request) error {
	if err := r.ParseMultipartForm(maxImageSize); err != nil {
		return fmt.Errorf("parse multipart form: %w", err)
	}

	req.Prompt = r.FormValue("prompt")
	if v := r.FormValue("min_confidence"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.New("min_confidence must be a number")
		}
		req.MinConfidence = f
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		return errors.New("image file is required")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageSize))
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	name := req.ID + "-" + header.Filename
	ref, err := h.Blobs.Put(r.Context(), name, data, header.Header.Get("Content-Type"))
	if err != nil {
		return fmt.Errorf("store image: %w", err)
	}
	req.ImageRef = ref
	return nil
}

// pollResponse is the caller-visible view of a request. Internal state
// machine detail (current phase, replan hints, per-pass history) stays
// inside; callers see status, the final result, and the intent ranking.
type pollResponse struct {
	RequestID  string            `json:"request_id"`
	Status     string            `json:"status"`
	Result     *classify.Outcome `json:"result,omitempty"`
	Warning    string            `json:"warning,omitempty"`
	Error      string            `json:"error,omitempty"`
	Intent     *intent.Result    `json:"intent,omitempty"`
	Iterations int               `json:"iterations"`
}

// GetClassification handles GET /api/v1/classify/{id}.
func (h *Handlers) GetClassification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	st, err := h.Orchestrator.Poll(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "request not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load request")
		return
	}

	resp := pollResponse{
		RequestID:  st.Request.ID,
		Status:     string(st.Status),
		Result:     st.Final,
		Warning:    st.MismatchWarning,
		Intent:     st.Intent,
		Iterations: st.Iteration,
	}
	if st.Status == classify.StatusFailed {
		resp.Error = failureMessage(st.FailureReason)
	}
	writeJSON(w, http.StatusOK, resp)
}

// failureMessage turns a verdict reason into the message shown to callers.
func failureMessage(reason classify.Reason) string {
	switch reason {
	case classify.ReasonBelowThreshold:
		return "no worker reached the requested confidence threshold"
	case classify.ReasonDisagreement:
		return "the worker ensemble could not agree on a label"
	case classify.ReasonWorkerError:
		return "no classification worker produced a usable result"
	default:
		return "classification failed"
	}
}

// SuggestedPrompts handles GET /api/v1/suggested-prompts.
func (h *Handlers) SuggestedPrompts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"prompts": service.SuggestedPrompts()})
}

// ListWorkers handles GET /api/v1/workers.
func (h *Handlers) ListWorkers(w http.ResponseWriter, r *http.Request) {
	records, err := h.Registry.Records(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "worker registry unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workers": records})
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readJSON decodes a JSON request body with a size limit.
func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return v, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
