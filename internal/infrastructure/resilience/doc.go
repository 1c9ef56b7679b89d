/*
Package resilience provides a circuit breaker used by plugin network
partitions.

A plugin whose remote entry origin is down would otherwise cost every create
attempt a full request timeout. Each partition keeps a Set of breakers keyed
by origin host; once an origin fails Settings.Failures times in a row, calls
to it fail with ErrCircuitOpen until Cooldown elapses, after which Probes
trial calls decide whether to close again.

	Closed --[failures]-> Open --[cooldown]-> Half-Open --[trial ok]-> Closed
	                                              |
	                                          [failure]
	                                              v
	                                             Open

Usage:

	b := resilience.New("cdn.example.com", resilience.Settings{Failures: 3})
	body, err := resilience.Call(ctx, b, func(ctx context.Context) ([]byte, error) {
		return fetch(ctx, url)
	})
*/
package resilience
