package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"ewastePickup/internal/apperr"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidAssignee:
		return http.StatusUnprocessableEntity
	case apperr.KindInvalidTransition, apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindAuthentication:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// writeError renders err as {"error", "kind"} plus "current_status" for invalid
// transitions. Unclassified errors are logged and reported as 500 without detail.
func writeError(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		log.WithError(err).Error("internal error")
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	body := map[string]string{"error": ae.Message, "kind": string(ae.Kind)}
	if ae.Current != "" {
		body["current_status"] = ae.Current
	}
	writeJSON(w, statusFor(ae.Kind), body)
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation("invalid JSON body: %v", err)
	}
	return nil
}
