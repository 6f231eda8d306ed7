package subscription

// HealthStatus buckets the overall subscription health score.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// Health is a point-in-time assessment of the subscription population.
type Health struct {
	Status          HealthStatus
	Score           int // 0..100
	Counts          Counts
	Recommendations []string
}

// Health scores the population: the active ratio carries half the weight,
// the error ratio under a third, staleness the rest. An empty coordinator
// is healthy.
func (c *Coordinator) Health() Health {
	c.mu.Lock()
	counts := c.countsLocked()
	capacity := c.cfg.MaxSubscriptionsPerConnection
	c.mu.Unlock()

	h := Health{Counts: counts}

	if counts.Total == 0 {
		h.Score = 100
		h.Status = HealthHealthy
		return h
	}

	total := float64(counts.Total)
	activeRate := float64(counts.Active) / total
	errorRate := float64(counts.Error) / total

	score := activeRate*50 + (1-errorRate)*30
	stalePart := 20.0 - 5.0*float64(counts.Stale)
	if stalePart < 0 {
		stalePart = 0
	}
	score += stalePart
	h.Score = int(score + 0.5)

	switch {
	case h.Score >= 80:
		h.Status = HealthHealthy
	case h.Score >= 50:
		h.Status = HealthDegraded
	default:
		h.Status = HealthUnhealthy
	}

	if errorRate > 0.2 {
		h.Recommendations = append(h.Recommendations,
			"high error ratio: inspect failure events and the upstream connection")
	}
	if counts.Stale > 0 {
		h.Recommendations = append(h.Recommendations,
			"stale subscriptions present: verify market activity or resubscribe")
	}
	if counts.Pending > counts.Active {
		h.Recommendations = append(h.Recommendations,
			"most subscriptions unconfirmed: check connectivity and confirmation handling")
	}
	if capacity > 0 && counts.Total*10 >= capacity*9 {
		h.Recommendations = append(h.Recommendations,
			"approaching the per-connection subscription limit")
	}
	return h
}
