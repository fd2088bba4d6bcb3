//go:build resilience

// Package resilience contains end-to-end tests that drive the lockrun
// binary from many processes at once and kill holders mid-run.
// These tests require the "resilience" build tag:
//
//	go test -tags=resilience ./tests/resilience/ -v -timeout 5m
package resilience
