// Package correlate implements event matching and delivery: it pairs thrown
// message instances with waiting catch events, fans signals out to their
// waiters, and resolves boundary error events.
package correlate

import (
	"sort"

	"flowplane/internal/store"
)

// ComputeCouples pairs candidate message instances with candidate waiting
// message events. Each waiting event appears in at most one couple per
// sweep, and each message instance in at most one couple. When several
// waiting events qualify for one instance the lowest id wins, which keeps
// ordering deterministic and starvation-free across repeated sweeps.
//
// The computation is a read-only scan; correctness under concurrent sweeps
// is enforced later at the claim step, not here.
func ComputeCouples(messages []store.MessageInstance, waits []store.WaitingEvent) []store.EventCouple {
	// Oldest registration first so the tie-break is a plain linear scan.
	sorted := make([]store.WaitingEvent, len(waits))
	copy(sorted, waits)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	usedWaits := make(map[int64]bool, len(sorted))
	var couples []store.EventCouple

	for _, m := range messages {
		if m.Handled || m.Locked {
			continue
		}
		for _, w := range sorted {
			if usedWaits[w.ID] {
				continue
			}
			if !matches(&m, &w) {
				continue
			}
			usedWaits[w.ID] = true
			couples = append(couples, store.EventCouple{
				WaitingEventID:    w.ID,
				WaitingEventKind:  w.Kind,
				MessageInstanceID: m.ID,
			})
			break
		}
		// A message instance with zero matches is left pending, not an error.
	}

	// Couples are consumed in ascending waiting-event-id order within a sweep.
	sort.Slice(couples, func(i, j int) bool {
		return couples[i].WaitingEventID < couples[j].WaitingEventID
	})

	return couples
}

func matches(m *store.MessageInstance, w *store.WaitingEvent) bool {
	if w.Kind != store.TriggerMessage || !w.Active || w.Locked {
		return false
	}
	if w.TenantID != m.TenantID {
		return false
	}
	if w.MessageName != m.MessageName {
		return false
	}
	if m.TargetProcess != "" && m.TargetProcess != w.ProcessName {
		return false
	}
	if m.TargetFlowNode != "" && m.TargetFlowNode != w.FlowNodeName {
		return false
	}
	return w.Correlation.Equal(m.Correlation)
}

// ComputeSignalMatches returns every active waiting signal event for the
// thrown signal. Signals broadcast: one delivery per waiting event, no
// correlation narrowing and no single-consumer contention.
func ComputeSignalMatches(waits []store.WaitingEvent, signalName string) []store.WaitingEvent {
	var matched []store.WaitingEvent
	for _, w := range waits {
		if w.Kind == store.TriggerSignal && w.Active && w.SignalName == signalName {
			matched = append(matched, w)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return matched
}

// FindErrorMatch selects the closest applicable error catch event: an event
// scoped to the failing activity instance with the exact error code wins,
// then a catch-all (nil code) at the same scope. Propagation to an
// enclosing scope is the process-execution collaborator's responsibility;
// nil means no match at this scope.
func FindErrorMatch(waits []store.WaitingEvent, errorCode string, relatedActivityInstanceID int64) *store.WaitingEvent {
	var catchAll *store.WaitingEvent

	for i := range waits {
		w := &waits[i]
		if w.Kind != store.TriggerError || !w.Active {
			continue
		}
		if w.RelatedActivityInstanceID != relatedActivityInstanceID {
			continue
		}
		if w.ErrorCode != nil {
			if *w.ErrorCode == errorCode {
				return w
			}
			continue
		}
		if catchAll == nil {
			catchAll = w
		}
	}

	return catchAll
}
