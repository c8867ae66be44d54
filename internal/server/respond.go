package server

import (
	"encoding/json"
	"io"
	"net/http"

	serrors "github.com/x5uw/SyncRoom/internal/errors"
)

type errorBody struct {
	Error      string `json:"error"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugw("write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := serrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Warnw("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	} else {
		log.Debugw("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Suggestion: serrors.GetSuggestion(err)})
}

// decodeBody reads an optional JSON body into v. An empty body leaves v as is.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return serrors.InvalidArgument("malformed request body: %v", err)
	}
	return nil
}
