//go:build e2e

// Package e2e provides end-to-end tests for the receive buffer.
//
// These tests are isolated from the standard test suite via build tags.
// They spin up two real pion/webrtc/v4 PeerConnections in-process (no
// browser) and exchange RTP over a track, with the receive-buffer
// interceptor registered on the receiving side.
//
// Running E2E tests:
//
//	go test -tags=e2e ./e2e/...
//
// Running all tests except E2E:
//
//	go test ./...
//
// Test isolation:
// Each test creates its own pair of PeerConnections. Tests can run in
// parallel.
package e2e
