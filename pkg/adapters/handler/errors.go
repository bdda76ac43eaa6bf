package handler

import (
	"errors"
	"net/http"

	"github.com/wadjakorntonsri/go-fact-collector/pkg/core/domain"
)

// requestError is a client mistake with a ready-made notice.
type requestError struct {
	notice domain.Notice
}

func (e *requestError) Error() string { return e.notice.Title + ": " + e.notice.Text }

func badRequest(title, text string) error {
	return &requestError{notice: domain.Notice{Category: domain.CategoryWarning, Title: title, Text: text}}
}

// errorResponse maps an error to a status code and the {category, title, text} body.
func errorResponse(err error) (int, domain.Notice) {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, reqErr.notice
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, domain.Notice{
			Category: domain.CategoryInformation,
			Title:    "No fact found",
			Text:     "The specified fact could not be found",
		}
	case errors.Is(err, domain.ErrEmptyDataset):
		return http.StatusNotFound, domain.Notice{
			Category: domain.CategoryInformation,
			Title:    "No facts found",
			Text:     "There are no facts in the app",
		}
	case errors.Is(err, domain.ErrInvalidSortKey):
		return http.StatusBadRequest, domain.Notice{
			Category: domain.CategoryWarning,
			Title:    "Invalid ordering",
			Text:     "Unknown sort order",
		}
	case errors.Is(err, domain.ErrInvalidPage):
		return http.StatusBadRequest, domain.Notice{
			Category: domain.CategoryWarning,
			Title:    "Invalid page",
			Text:     "The page index must be a non-negative number",
		}
	default:
		return http.StatusInternalServerError, domain.Notice{
			Category: domain.CategoryError,
			Title:    "Unexpected error",
			Text:     "Something went wrong while processing the request",
		}
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status, notice := errorResponse(err)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).Error("request failed")
	}
	writeJSON(w, status, notice)
}
