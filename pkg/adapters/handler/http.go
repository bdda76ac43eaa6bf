package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/core/domain"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/logger"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/ports"
)

type HTTPHandler struct {
	service ports.FactService
	log     *logger.Logger
}

func NewHTTPHandler(service ports.FactService, log *logger.Logger) *HTTPHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &HTTPHandler{service: service, log: log}
}

// List facts: ?order=<name|ordinal>&descending=<bool>&pageIndex=<n>
func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	key, err := domain.ParseSortKey(q.Get("order"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	descending := false
	if v := q.Get("descending"); v != "" {
		if descending, err = strconv.ParseBool(v); err != nil {
			h.writeError(w, badRequest("Invalid ordering", "descending must be true or false"))
			return
		}
	}

	pageIndex := 0
	if v := q.Get("pageIndex"); v != "" {
		if pageIndex, err = strconv.Atoi(v); err != nil {
			h.writeError(w, fmt.Errorf("%w: %q", domain.ErrInvalidPage, v))
			return
		}
	}

	page, err := h.service.List(r.Context(), key, descending, pageIndex)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Get a single fact
func (h *HTTPHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	fact, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fact)
}

func (h *HTTPHandler) Like(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	fact, err := h.service.Like(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fact)
}

func (h *HTTPHandler) Dislike(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	fact, err := h.service.Dislike(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fact)
}

func (h *HTTPHandler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, badRequest("Invalid ID", "The fact id is not a valid identifier"))
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
