package api

import (
	"encoding/json"
	"net/http"
)

// Error is the body of a transport-level error: the request never became
// an RPC call. RPC faults travel inside rpcResponse instead.
type Error struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// transportCodes names the statuses the server produces itself.
var transportCodes = map[int]string{
	http.StatusBadRequest:            "bad_request",
	http.StatusUnauthorized:          "unauthorised",
	http.StatusRequestEntityTooLarge: "too_large",
	http.StatusInternalServerError:   "internal_error",
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a transport error tagged with the request's ID.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	code, ok := transportCodes[status]
	if !ok {
		code = "error"
	}
	writeJSON(w, status, Error{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: traceFrom(r.Context()).id,
	})
}
