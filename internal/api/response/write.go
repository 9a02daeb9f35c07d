package response

import (
	"encoding/json"
	"net/http"

	"github.com/mcoot/credauth/internal/services/auth"
)

// JSON writes a JSON response
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Result writes an auth.Result as its status and payload
func Result(w http.ResponseWriter, res auth.Result) {
	JSON(w, res.Status, res.Payload)
}
