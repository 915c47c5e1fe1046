package cache

// Stats is a snapshot of the cache's process-lifetime counters and the
// hit rates derived from them. Rates are percentages of total gets.
type Stats struct {
	LocalSize       int     `json:"l1_size"`
	LocalMaxSize    int     `json:"l1_max_size"`
	LocalHits       int64   `json:"l1_hits"`
	LocalMisses     int64   `json:"l1_misses"`
	LocalHitRate    float64 `json:"l1_hit_rate"`
	StoreHits       int64   `json:"l2_hits"`
	StoreMisses     int64   `json:"l2_misses"`
	StoreHitRate    float64 `json:"l2_hit_rate"`
	CombinedHitRate float64 `json:"combined_hit_rate"`
	TotalGets       int64   `json:"total_gets"`
	TotalSets       int64   `json:"total_sets"`
	StoreConnected  bool    `json:"store_connected"`
}

// Stats returns a snapshot of the cumulative counters. Counters only
// reset via ResetStats.
func (c *Cache) Stats() Stats {
	s := Stats{
		LocalSize:      c.local.len(),
		LocalMaxSize:   c.cfg.LocalCapacity,
		LocalHits:      c.localHits.Load(),
		LocalMisses:    c.localMisses.Load(),
		StoreHits:      c.storeHits.Load(),
		StoreMisses:    c.storeMisses.Load(),
		TotalGets:      c.totalGets.Load(),
		TotalSets:      c.totalSets.Load(),
		StoreConnected: c.store != nil && c.connected.Load(),
	}

	if s.TotalGets > 0 {
		total := float64(s.TotalGets)
		s.LocalHitRate = float64(s.LocalHits) / total * 100
		s.StoreHitRate = float64(s.StoreHits) / total * 100
		s.CombinedHitRate = float64(s.LocalHits+s.StoreHits) / total * 100
	}

	return s
}

// ResetStats zeroes all cumulative counters.
func (c *Cache) ResetStats() {
	c.localHits.Store(0)
	c.localMisses.Store(0)
	c.storeHits.Store(0)
	c.storeMisses.Store(0)
	c.totalGets.Store(0)
	c.totalSets.Store(0)
}
