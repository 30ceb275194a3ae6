// Package auth authenticates RPC callers of the gateway.
//
// It provides:
//   - Argon2id password hashing in PHC format
//   - a SQLite account table and a Verifier over it
//   - a session table of HS256-signed tokens with absolute expiry
//   - Service, which ties the two together for Login and per-call checks
//
// A caller authenticates either with (user, password) or with the reserved
// user name "session_id" and a token returned by Login. Sessions expire
// timeout after Login and are only renewed by logging in again; expiry is
// checked when a token is used.
package auth
