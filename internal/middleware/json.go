package middleware

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes v with the given status. Encoding errors are ignored
// because the header is already sent.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
