/*
Package resilience provides a circuit breaker for remote origins.

Downloads fail in runs: an origin that has just refused three requests will
usually refuse the fourth. A Breaker opens after FailureThreshold consecutive
failures, rejects calls with ErrCircuitOpen for Cooldown, then admits Probes
trial calls before closing again. Group keeps one breaker per host.

	Closed --[failures]-> Open --[cooldown]-> Half-Open --[probes ok]-> Closed
	                                              |
	                                          [failure]
	                                              v
	                                            Open

Usage:

	breakers := resilience.NewGroup(resilience.Settings{FailureThreshold: 3})
	err := breakers.Get(u.Host).Do(func() error {
		return fetch(ctx, u)
	})

Context cancellation is not counted as a failure unless IsFailure says so.
*/
package resilience
