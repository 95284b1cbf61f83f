package metrics

import "expvar"

var (
	LoginAttempts = expvar.NewInt("login_attempts")
	LoginFailures = expvar.NewInt("login_failures")

	RacesStarted   = expvar.NewInt("races_started")
	RacesWon       = expvar.NewInt("races_won") // 胜出的尝试为成功
	RacesLost      = expvar.NewInt("races_lost")
	RaceAttempts   = expvar.NewInt("race_attempts")
	AttemptBlocked = expvar.NewInt("race_attempts_blocked")

	OrdersSubmitted = expvar.NewInt("orders_submitted")
	OrdersFailed    = expvar.NewInt("orders_failed")

	DiscoveryRuns     = expvar.NewInt("discovery_runs")
	DiscoveryListings = expvar.NewInt("discovery_new_listings")
	DiscoveryRejected = expvar.NewInt("discovery_rejected_batches")

	RegistryEngines = expvar.NewInt("registry_engines")
)

var counters = map[string]*expvar.Int{
	"login_attempts":             LoginAttempts,
	"login_failures":             LoginFailures,
	"races_started":              RacesStarted,
	"races_won":                  RacesWon,
	"races_lost":                 RacesLost,
	"race_attempts":              RaceAttempts,
	"race_attempts_blocked":      AttemptBlocked,
	"orders_submitted":           OrdersSubmitted,
	"orders_failed":              OrdersFailed,
	"discovery_runs":             DiscoveryRuns,
	"discovery_new_listings":     DiscoveryListings,
	"discovery_rejected_batches": DiscoveryRejected,
	"registry_engines":           RegistryEngines,
}

// Snapshot 当前计数器的值（不含 runtime 的 memstats/cmdline）
func Snapshot() map[string]int64 {
	out := make(map[string]int64, len(counters))
	for name, v := range counters {
		out[name] = v.Value()
	}
	return out
}
