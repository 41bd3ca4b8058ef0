// internal/correlation/stats.go
package correlation

import (
	"time"

	"github.com/user/threatsight/internal/types"
)

// Stats computes a read-only aggregate snapshot over the current log. Nothing
// is cached; every call walks the log under the lock.
func (s *Store) Stats() types.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := types.Stats{
		ByType:     make(map[types.MessageType]int),
		ByAgent:    make(map[types.AgentID]int),
		ByPriority: make(map[types.Priority]int),
	}
	stats.Total = len(s.messages)
	if stats.Total == 0 {
		return stats
	}

	now := s.now()
	cutoff := now.Add(-s.rateWindow)

	var totalLatency time.Duration
	succeeded := 0
	recent := 0
	for _, m := range s.messages {
		stats.ByType[m.Type]++
		stats.ByAgent[m.SourceID]++
		stats.ByPriority[m.Priority]++
		totalLatency += m.Latency
		stats.TotalTokens += m.TokenCount
		if m.Success {
			succeeded++
		}
		if !m.Timestamp.Before(cutoff) {
			recent++
		}
	}

	stats.AverageLatency = totalLatency / time.Duration(stats.Total)
	stats.SuccessRate = float64(succeeded) / float64(stats.Total)
	stats.MessageRate = float64(recent) / s.rateWindow.Seconds()
	return stats
}
