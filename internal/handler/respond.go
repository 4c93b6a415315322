// Package handler exposes the HTTP surface of the auth service: the
// three OTP flows, session refresh and logout, and the middleware gates
// protected routes sit behind.
package handler

import (
	"encoding/json"
	"net/http"

	"pics-backend/internal/apperror"
	"pics-backend/internal/util"
)

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		util.Error("failed to encode response", util.ErrorField(err))
	}
}

// respondError maps domain errors to their HTTP shape. Anything that is
// not an AppError is a programming error or infrastructure failure and
// turns into an opaque 500.
func respondError(w http.ResponseWriter, err error) {
	if appErr := apperror.From(err); appErr != nil {
		if appErr.Internal != nil {
			util.Error("request failed",
				util.String("type", appErr.Type),
				util.ErrorField(appErr.Internal))
		}
		respondJSON(w, appErr.Code, map[string]string{"message": appErr.Message})
		return
	}

	util.Error("unhandled error", util.ErrorField(err))
	respondJSON(w, http.StatusInternalServerError, map[string]string{"message": "internal server error"})
}

// decodeBody parses a JSON request body into dst. Unknown fields are
// tolerated; a syntactically broken body is a 400.
func decodeBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.NewInvalidInput("invalid request body")
	}
	return nil
}
