package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"ecotrace-api/internal/middleware"
	"ecotrace-api/internal/model"
	"ecotrace-api/pkg/apierror"
	"ecotrace-api/pkg/logger"
	"ecotrace-api/pkg/response"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// toAPIError maps a classified domain error to its HTTP form.
func toAPIError(err error) *apierror.Error {
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	msg := err.Error()
	var domainErr *model.Error
	if errors.As(err, &domainErr) {
		msg = domainErr.Message
	}

	switch model.KindOf(err) {
	case model.KindUnauthenticated:
		return apierror.Unauthorized(msg)
	case model.KindInvalidArgument:
		return apierror.BadRequest(msg)
	case model.KindNotFound:
		return apierror.NotFound(msg)
	case model.KindAlreadyExists:
		return apierror.Conflict(msg)
	case model.KindAlreadyRegisteredByCaller:
		e := apierror.Conflict(msg)
		e.Code = "ALREADY_REGISTERED_BY_CALLER"
		return e
	case model.KindAlreadyRegisteredByOther:
		e := apierror.Conflict(msg)
		e.Code = "ALREADY_REGISTERED_BY_OTHER"
		return e
	case model.KindPermissionDenied:
		return apierror.Forbidden(msg)
	case model.KindDataCorruption:
		return apierror.DataCorruption(msg)
	case model.KindFailedPrecondition:
		return apierror.PreconditionFailed(msg)
	default:
		return apierror.InternalError("")
	}
}

// writeError logs server-side failures and writes the mapped error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		log := logger.Component("Handler")
		log.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Msg("request failed")
	}
	response.Error(w, apiErr)
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return apierror.BadRequest("invalid request body")
	}
	return nil
}

// subjectOf returns the caller's subject id, or "" when unauthenticated.
func subjectOf(r *http.Request) string {
	if c := middleware.GetCaller(r.Context()); c != nil {
		return c.SubjectID
	}
	return ""
}

// actsAs reports whether the caller may act for the account id of the given
// role. Staff may act for anyone.
func actsAs(r *http.Request, role, id string) bool {
	c := middleware.GetCaller(r.Context())
	if c == nil {
		return false
	}
	if c.Role == model.RoleAdmin {
		return true
	}
	return c.Role == role && c.SubjectID == id
}
