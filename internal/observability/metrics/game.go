package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type matchCollector struct {
	mu                sync.Mutex
	matchesStarted    uint64
	matchesEnded      map[string]uint64
	phasesClosed      map[string]uint64
	settlementRetries uint64
}

var gameCollector = &matchCollector{
	matchesEnded: make(map[string]uint64),
	phasesClosed: make(map[string]uint64),
}

// ObserveMatchStarted records that a match moved from matchmaking into play.
func ObserveMatchStarted() {
	gameCollector.mu.Lock()
	gameCollector.matchesStarted++
	gameCollector.mu.Unlock()
}

// ObserveMatchEnded records a finished match, labelled by the winning side.
func ObserveMatchEnded(winner string) {
	if winner == "" {
		winner = "none"
	}
	gameCollector.mu.Lock()
	gameCollector.matchesEnded[winner]++
	gameCollector.mu.Unlock()
}

// ObservePhaseClosed records a phase resolution, labelled by the closing phase.
func ObservePhaseClosed(phase string) {
	gameCollector.mu.Lock()
	gameCollector.phasesClosed[phase]++
	gameCollector.mu.Unlock()
}

// ObserveSettlementRetry records a retried settlement attempt.
func ObserveSettlementRetry() {
	gameCollector.mu.Lock()
	gameCollector.settlementRetries++
	gameCollector.mu.Unlock()
}

func (c *matchCollector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var builder strings.Builder
	builder.Grow(512)

	builder.WriteString("# HELP arena_matches_started_total Total number of matches started.\n")
	builder.WriteString("# TYPE arena_matches_started_total counter\n")
	builder.WriteString(fmt.Sprintf("arena_matches_started_total %d\n", c.matchesStarted))

	builder.WriteString("# HELP arena_matches_ended_total Total number of matches ended, by winning side.\n")
	builder.WriteString("# TYPE arena_matches_ended_total counter\n")
	winners := make([]string, 0, len(c.matchesEnded))
	for winner := range c.matchesEnded {
		winners = append(winners, winner)
	}
	sort.Strings(winners)
	for _, winner := range winners {
		builder.WriteString(fmt.Sprintf("arena_matches_ended_total{winner=\"%s\"} %d\n", escape(winner), c.matchesEnded[winner]))
	}

	builder.WriteString("# HELP arena_phases_closed_total Total number of phase resolutions, by phase.\n")
	builder.WriteString("# TYPE arena_phases_closed_total counter\n")
	phases := make([]string, 0, len(c.phasesClosed))
	for phase := range c.phasesClosed {
		phases = append(phases, phase)
	}
	sort.Strings(phases)
	for _, phase := range phases {
		builder.WriteString(fmt.Sprintf("arena_phases_closed_total{phase=\"%s\"} %d\n", escape(phase), c.phasesClosed[phase]))
	}

	builder.WriteString("# HELP arena_settlement_retries_total Total number of retried settlement attempts.\n")
	builder.WriteString("# TYPE arena_settlement_retries_total counter\n")
	builder.WriteString(fmt.Sprintf("arena_settlement_retries_total %d\n", c.settlementRetries))

	return builder.String()
}
