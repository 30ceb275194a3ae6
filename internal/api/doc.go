// Package api carries gateway RPC calls over HTTP and pushes live events
// over WebSocket.
//
// Routes:
//
//	GET  /health   liveness, no authentication
//	GET  /metrics  runtime and gateway figures, no authentication
//	POST /rpc      {"method": "GetValue", "params": ["ccd0", "exposure"]}
//	GET  /ws       event push, ?token=<session token>
//
// RPC credentials travel in HTTP Basic auth, either a user and password or
// the user "session_id" with a token returned by Login. A call answers
// {"result": ...} or {"fault": {"code": ..., "message": ...}}, both with
// status 200. Only a body that is not a call gets a 400.
//
// A WebSocket client first receives a hello frame listing its
// subscription. It starts on the "messages" and "values" channels and may
// change channels or narrow events to some devices with
//
//	{"type": "subscribe", "id": "1", "data": {"channels": ["values"], "devices": ["ccd0"]}}
//
// Frames that do not fit a slow client's queue are dropped and counted in
// /metrics.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
