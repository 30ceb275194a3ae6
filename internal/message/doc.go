// Package message keeps the bounded history of operator-visible messages.
//
// Device log lines, failed commands and failed trigger actions end up here.
// The history is a ring: once capacity is reached the oldest message is
// dropped. GetMessages returns the ring oldest first.
package message
