package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/nsd-bridge/nsd-go/pkg/log"
	"github.com/nsd-bridge/nsd-go/pkg/nsderr"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	CallbackOutcomes  map[log.Outcome]int
	Methods           map[string]int
	Sessions          map[string]*SessionStats
	Failures          int
	FailuresByCause   map[nsderr.Cause]int
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// SessionStats holds statistics for a single bridge instance.
type SessionStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Engine    string
	Handles   map[string]bool
}

func newStats() *Stats {
	return &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		CallbackOutcomes:  make(map[log.Outcome]int),
		Methods:           make(map[string]int),
		FailuresByCause:   make(map[nsderr.Cause]int),
		Sessions:          make(map[string]*SessionStats),
	}
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	session, ok := s.Sessions[event.SessionID]
	if !ok {
		session = &SessionStats{
			FirstSeen: event.Timestamp,
			LastSeen:  event.Timestamp,
			Handles:   make(map[string]bool),
		}
		s.Sessions[event.SessionID] = session
	}
	session.Events++
	if event.Timestamp.After(session.LastSeen) {
		session.LastSeen = event.Timestamp
	}
	if event.Engine != "" && session.Engine == "" {
		session.Engine = event.Engine
	}
	if event.Handle != "" && event.Layer != log.LayerEngine {
		// Engine layer handles of stale callbacks are engine keys.
		session.Handles[event.Handle] = true
	}

	switch {
	case event.Message != nil:
		if event.Message.Method != "" {
			s.Methods[event.Message.Method]++
		}
		if event.Message.Cause != "" {
			s.Failures++
			s.FailuresByCause[nsderr.ParseCause(event.Message.Cause)]++
		}
	case event.Callback != nil:
		s.CallbackOutcomes[event.Callback.Outcome]++
	case event.Error != nil:
		s.Errors++
	}
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats := newStats()
	if err := eachEvent(path, log.Filter{}, func(event log.Event) error {
		stats.add(event)
		return nil
	}); err != nil {
		return err
	}

	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== DNS-SD Bridge Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerWire, log.LayerBridge, log.LayerEngine} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-16s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryCallback, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-16s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-16s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.Methods) > 0 {
		fmt.Fprintln(w, "Messages by Method:")
		methods := make([]string, 0, len(stats.Methods))
		for m := range stats.Methods {
			methods = append(methods, m)
		}
		sort.Strings(methods)
		for _, m := range methods {
			fmt.Fprintf(w, "  %-30s %d\n", m+":", stats.Methods[m])
		}
		fmt.Fprintln(w)
	}

	if len(stats.CallbackOutcomes) > 0 {
		fmt.Fprintln(w, "Engine Callbacks:")
		for _, o := range []log.Outcome{log.OutcomeDelivered, log.OutcomeDuplicate, log.OutcomeUnknown, log.OutcomeStale, log.OutcomeDeferred} {
			if count := stats.CallbackOutcomes[o]; count > 0 {
				fmt.Fprintf(w, "  %-16s %d\n", o.String()+":", count)
			}
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Sessions: %d\n", len(stats.Sessions))
	if len(stats.Sessions) > 0 {
		type sessionInfo struct {
			id    string
			stats *SessionStats
		}
		sessions := make([]sessionInfo, 0, len(stats.Sessions))
		for id, ss := range stats.Sessions {
			sessions = append(sessions, sessionInfo{id, ss})
		}
		sort.Slice(sessions, func(i, j int) bool {
			return sessions[i].stats.FirstSeen.Before(sessions[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, s := range sessions {
			duration := s.stats.LastSeen.Sub(s.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, %d handles, duration %s\n",
				shortenID(s.id), s.stats.Events, len(s.stats.Handles), duration)
			if s.stats.Engine != "" {
				fmt.Fprintf(w, "           Engine: %s\n", s.stats.Engine)
			}
		}
	}

	if stats.Failures > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Failed responses and events: %d\n", stats.Failures)
		for _, c := range []nsderr.Cause{nsderr.IllegalArgument, nsderr.AlreadyActive, nsderr.MaxLimit, nsderr.SecurityIssue, nsderr.InternalError} {
			if count := stats.FailuresByCause[c]; count > 0 {
				fmt.Fprintf(w, "  %-16s %d\n", c.String()+":", count)
			}
		}
	}
	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
