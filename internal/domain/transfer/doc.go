// Package transfer runs ephemeral install and share sessions.
//
// The Orchestrator checks a request, acquires the keep-active guard, starts
// a Service scoped to one bundle and presents the resulting Session. Every
// exit path releases what it acquired:
//
//   - invalid request: nothing acquired, nothing started
//   - service start failure: guard released
//   - Session.Close: service shut down and guard released, once
//
// Each consumer holds at most one session. Starting another closes the old
// one first.
package transfer
