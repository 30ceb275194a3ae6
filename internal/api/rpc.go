package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/nerrad567/obsgate/internal/rpc"
)

// rpcRequest is the body of POST /rpc.
type rpcRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// rpcResponse carries exactly one of Result and Fault.
type rpcResponse struct {
	Result rpc.Value  `json:"result,omitempty"`
	Fault  *rpc.Fault `json:"fault,omitempty"`
}

// handleRPC runs one call. Faults are part of a successful HTTP exchange;
// only a body that cannot be read as a call is an HTTP error.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Method == "" {
		writeError(w, r, http.StatusBadRequest, "method is required")
		return
	}

	params, err := rpc.DecodeParams(req.Params)
	if err != nil {
		fault := rpc.FaultFromError(err)
		s.calls.record(req.Method, fault.Code)
		writeJSON(w, http.StatusOK, rpcResponse{Fault: fault})
		return
	}

	var creds rpc.Credentials
	if user, secret, ok := r.BasicAuth(); ok {
		creds = rpc.Credentials{User: user, Secret: secret}
	}

	t := traceFrom(r.Context())
	t.method, t.user = req.Method, creds.User

	result, fault := s.rpc.Call(r.Context(), req.Method, creds, rpc.Params(params))
	if fault != nil {
		t.fault = fault.Code
		s.calls.record(req.Method, fault.Code)
		writeJSON(w, http.StatusOK, rpcResponse{Fault: fault})
		return
	}
	s.calls.record(req.Method, "")
	writeJSON(w, http.StatusOK, rpcResponse{Result: result})
}

// callStats counts calls and faults per method for /metrics.
type callStats struct {
	mu      sync.Mutex
	methods map[string]*CallMetrics
}

func newCallStats() *callStats {
	return &callStats{methods: make(map[string]*CallMetrics)}
}

func (c *callStats) record(method string, fault rpc.Code) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.methods[method]
	if !ok {
		m = &CallMetrics{Faults: make(map[rpc.Code]uint64)}
		c.methods[method] = m
	}
	m.Calls++
	if fault != "" {
		m.Faults[fault]++
	}
}

func (c *callStats) snapshot() map[string]CallMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]CallMetrics, len(c.methods))
	for name, m := range c.methods {
		faults := make(map[rpc.Code]uint64, len(m.Faults))
		for code, n := range m.Faults {
			faults[code] = n
		}
		out[name] = CallMetrics{Calls: m.Calls, Faults: faults}
	}
	return out
}
