// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Feedback []string `json:"feedback,omitempty"`
}

// statusForCode maps service error codes to HTTP statuses. Codes without a
// mapping are internal failures and surface as a generic 500.
var statusForCode = map[string]int{
	auth.CodeValidation:         http.StatusBadRequest,
	auth.CodeWeakPassword:       http.StatusBadRequest,
	auth.CodeTokenInvalid:       http.StatusBadRequest,
	auth.CodeEmailTaken:         http.StatusConflict,
	auth.CodeInvalidCredentials: http.StatusUnauthorized,
	auth.CodeSessionInvalid:     http.StatusUnauthorized,
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	detail := errorDetail{
		Code:    "INTERNAL",
		Message: "internal server error",
	}
	status := http.StatusInternalServerError

	if oopsErr, ok := oops.AsOops(err); ok {
		code, _ := oopsErr.Code().(string)
		if mapped, known := statusForCode[code]; known {
			status = mapped
			detail.Code = code
			detail.Message = oopsErr.Error()
			if fb, ok := oopsErr.Context()["feedback"].([]string); ok {
				detail.Feedback = fb
			}
		}
	}

	if status == http.StatusInternalServerError {
		errutil.LogError(h.logger, "request failed", err)
	} else {
		h.logger.DebugContext(r.Context(), "request rejected",
			slog.String("code", detail.Code),
			slog.Int("status", status))
	}

	writeJSON(w, status, errorBody{Error: detail})
}

// messageBody is the JSON shape of generic success responses. Routes that
// must not reveal account state return it with the same wording regardless
// of outcome.
type messageBody struct {
	Message string `json:"message"`
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageBody{Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decodeJSON parses a request body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return oops.Code(auth.CodeValidation).Wrapf(err, "malformed request body")
	}
	return nil
}
