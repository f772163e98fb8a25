/*
Package resilience provides circuit breakers for remote targets.

The dependency registry fetches packages from remote hosts on behalf of
every worker. When a host goes down, a breaker per host makes later boots
fail that dependency immediately instead of spending the full retry budget
on each one.

# Usage

	breakers := resilience.NewSet(resilience.Settings{
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	err := breakers.Do(host, func() error {
		return fetch(host)
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience
