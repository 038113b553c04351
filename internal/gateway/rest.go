package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/tdxcore/leadqualifier/internal/errs"
)

// REST is the legacy REST facade described in SPEC_FULL.md §4.12: a
// trailing-slash-tolerant mapping of HTTP verbs onto the same router that
// serves WebSocket requests, for operator tooling that predates the
// gateway protocol.
type REST struct {
	router *router
}

// NewREST builds the legacy facade over the same router the hub uses, so
// a REST write and a WebSocket write are indistinguishable to the rest of
// the system.
func NewREST(r *router) *REST { return &REST{router: r} }

func (h *REST) Routes(mux *http.ServeMux) {
	mux.Handle("/api/users", h)
	mux.Handle("/api/users/", h)
	mux.Handle("/api/conversations", h)
	mux.Handle("/api/conversations/", h)
	mux.Handle("/api/messages", h)
	mux.Handle("/api/messages/", h)
	mux.Handle("/api/meetings", h)
	mux.Handle("/api/meetings/", h)
}

func (h *REST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/")
	path = strings.Trim(path, "/")
	parts := strings.SplitN(path, "/", 2)
	resource := parts[0]
	id := ""
	if len(parts) == 2 {
		id = parts[1]
	}

	var payload requestPayload
	payload.ID = id

	switch r.Method {
	case http.MethodGet:
		if id != "" {
			payload.Action = "get_by_id"
		} else {
			payload.Action = "get_all"
			payload.Filter = queryToJSON(r)
		}
	case http.MethodPost:
		payload.Action = "create"
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		payload.Data = body
	case http.MethodPut, http.MethodPatch:
		if id == "" {
			writeJSONError(w, http.StatusBadRequest, "id is required")
			return
		}
		payload.Action = "update"
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		payload.Data = body
	case http.MethodDelete:
		if id == "" {
			writeJSONError(w, http.StatusBadRequest, "id is required")
			return
		}
		payload.Action = "delete"
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	result, err := h.router.dispatch(r.Context(), resource, payload)
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func queryToJSON(r *http.Request) json.RawMessage {
	query := r.URL.Query()
	if len(query) == 0 {
		return nil
	}
	fields := make(map[string]string, len(query))
	for k, v := range query {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}
	data, _ := json.Marshal(fields)
	return data
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": message})
}

func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindConstraintViolation:
		return http.StatusConflict
	case errs.KindPermanentDependency:
		return http.StatusBadGateway
	case errs.KindTransientDependency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
