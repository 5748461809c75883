package notify

import "github.com/sony/gobreaker"

var (
	// MaxNumOfFailingRequests is the request count below which the breaker never trips.
	MaxNumOfFailingRequests = 10
	// FailingRatio is the failure share at which the breaker trips.
	FailingRatio = 0.6
)

// newCircuitBreaker trips once more than MaxNumOfFailingRequests webhook
// calls were made and at least FailingRatio of them failed.
func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: name,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return int(counts.Requests) > MaxNumOfFailingRequests && ratio >= FailingRatio
		},
	})
}
