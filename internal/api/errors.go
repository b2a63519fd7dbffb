package api

import (
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/locolive/pulse/internal/domain"
	"github.com/locolive/pulse/pkg/response"
	"github.com/locolive/pulse/pkg/validator"
)

// writeServiceError maps a service error onto the HTTP error envelope.
// Anything unrecognized is logged and reported as a 500.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error, msg string) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		response.ValidationFailed(w, verrs)
	case errors.Is(err, domain.ErrNotificationNotFound):
		response.NotFound(w, "notification not found")
	case errors.Is(err, domain.ErrRoomNotFound):
		response.NotFound(w, "room not found")
	case errors.Is(err, domain.ErrNotParticipant):
		response.Forbidden(w, "not a participant of this room")
	case errors.Is(err, domain.ErrEmptyMessage), errors.Is(err, domain.ErrInvalidRoom):
		response.BadRequest(w, err.Error())
	default:
		logger.Error(msg, zap.Error(err))
		response.InternalError(w, msg)
	}
}

// pagination reads limit plus either offset or a 1-based page from the
// query string. size clamps the limit the way the service will.
func pagination(r *http.Request, size func(int) int) (limit, offset int) {
	q := r.URL.Query()
	requested, _ := strconv.Atoi(q.Get("limit"))
	limit = size(requested)

	if v := q.Get("offset"); v != "" {
		offset, _ = strconv.Atoi(v)
	} else if page, _ := strconv.Atoi(q.Get("page")); page > 1 {
		offset = (page - 1) * limit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
