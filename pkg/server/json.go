package server

import (
	"encoding/json"
	"net/http"

	"github.com/openresponses/openresponses/pkg/api"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody is the error envelope every non-streaming failure uses.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func writeError(w http.ResponseWriter, err error) {
	e := api.AsError(err, api.KindStorage)
	writeJSON(w, e.Kind.HTTPStatus(), errorBody{Error: errorDetail{
		Message: e.Message,
		Type:    string(e.Kind),
	}})
}
