package validation

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"lineageforge/internal/claimgraph"
	id "lineageforge/pkg/domain"
)

// The rule families below are pure: each reads the snapshot and returns flags.
// None of them mutate the snapshot or perform I/O.

func newFlag(t FlagType, sev Severity, persons []id.PersonID, claims []id.ClaimID, rationale string, details map[string]string) Flag {
	parts := make([]string, 0, 1+len(persons)+len(claims))
	parts = append(parts, string(t))
	for _, p := range persons {
		parts = append(parts, p.String())
	}
	for _, c := range claims {
		parts = append(parts, c.String())
	}
	return Flag{
		ID:        id.DeterministicFlagID(parts...),
		Type:      t,
		Severity:  sev,
		PersonIDs: persons,
		ClaimIDs:  claims,
		Rationale: rationale,
		Details:   details,
	}
}

// datedClaim pairs a claim with the date it asserts.
type datedClaim struct {
	claim claimgraph.Claim
	date  claimgraph.Date
}

// datedClaims returns the parseable claims of pred for pid, in claim order.
func datedClaims(s *claimgraph.Snapshot, pid id.PersonID, pred claimgraph.Predicate) []datedClaim {
	var out []datedClaim
	for _, c := range s.ClaimsWithPredicate(pid, pred) {
		if d, ok := c.Date(); ok {
			out = append(out, datedClaim{claim: c, date: d})
		}
	}
	return out
}

// bestDated picks the highest-confidence dated claim; ties go to the lower
// claim id because candidates arrive in claim order.
func bestDated(s *claimgraph.Snapshot, pid id.PersonID, pred claimgraph.Predicate) (datedClaim, bool) {
	var best datedClaim
	found := false
	for _, dc := range datedClaims(s, pid, pred) {
		if !found || dc.claim.Confidence > best.claim.Confidence {
			best = dc
			found = true
		}
	}
	return best, found
}

// definitelyBefore reports whether a precedes b at the precision both dates
// share. "1900" does not precede "1900-06-01".
func definitelyBefore(a, b claimgraph.Date) bool {
	if a.Year() != b.Year() {
		return a.Year() < b.Year()
	}
	p := min(a.Precision, b.Precision)
	if p == claimgraph.PrecisionYear {
		return false
	}
	if a.Time.Month() != b.Time.Month() {
		return a.Time.Month() < b.Time.Month()
	}
	if p == claimgraph.PrecisionMonth {
		return false
	}
	return a.Time.Day() < b.Time.Day()
}

// checkLifespan compares every birth against every death for each person.
func checkLifespan(s *claimgraph.Snapshot, cfg RuleConfig) []Flag {
	var flags []Flag
	for _, p := range s.ActivePersons() {
		births := datedClaims(s, p.ID, claimgraph.PredicateBornOn)
		deaths := datedClaims(s, p.ID, claimgraph.PredicateDiedOn)
		for _, b := range births {
			for _, d := range deaths {
				details := map[string]string{
					"birth_date": b.date.Canonical(),
					"death_date": d.date.Canonical(),
				}
				claims := []id.ClaimID{b.claim.ID, d.claim.ID}
				switch {
				case definitelyBefore(d.date, b.date):
					flags = append(flags, newFlag(FlagLifespanInvalid, SeverityError,
						[]id.PersonID{p.ID}, claims,
						fmt.Sprintf("death %s precedes birth %s", d.date.Canonical(), b.date.Canonical()),
						details))
				case d.date.Time.After(b.date.Time.AddDate(cfg.LifespanMaxYears, 0, 0)):
					years := claimgraph.CompletedYears(b.date.Time, d.date.Time)
					details["lifespan_years"] = strconv.Itoa(years)
					flags = append(flags, newFlag(FlagLifespanInvalid, SeverityWarning,
						[]id.PersonID{p.ID}, claims,
						fmt.Sprintf("lifespan exceeds %d years (%d completed)", cfg.LifespanMaxYears, years),
						details))
				}
			}
		}
	}
	return flags
}

// parentChild resolves a relational claim into (parent, child) when it is a
// parentage edge.
func parentChild(c claimgraph.Claim) (parent, child id.PersonID, ok bool) {
	obj, ok := c.Object()
	if !ok {
		return id.PersonID{}, id.PersonID{}, false
	}
	switch c.Predicate {
	case claimgraph.PredicateParentOf:
		return c.SubjectID, obj, true
	case claimgraph.PredicateChildOf:
		return obj, c.SubjectID, true
	}
	return id.PersonID{}, id.PersonID{}, false
}

// checkGenerationalSpacing measures the parent's age at the child's birth for
// every parentage claim. Edges missing either birth are
// skipped.
func checkGenerationalSpacing(s *claimgraph.Snapshot, cfg RuleConfig) []Flag {
	births := make(map[id.PersonID]datedClaim)
	birthOf := func(pid id.PersonID) (datedClaim, bool) {
		if dc, ok := births[pid]; ok {
			return dc, true
		}
		dc, ok := bestDated(s, pid, claimgraph.PredicateBornOn)
		if ok {
			births[pid] = dc
		}
		return dc, ok
	}

	var flags []Flag
	for _, c := range s.Claims() {
		parent, child, ok := parentChild(c)
		if !ok || !s.IsActive(c.SubjectID) {
			continue
		}
		pb, ok := birthOf(parent)
		if !ok {
			continue
		}
		cb, ok := birthOf(child)
		if !ok {
			continue
		}
		gap := claimgraph.CompletedYears(pb.date.Time, cb.date.Time)
		details := map[string]string{
			"parent_birth": pb.date.Canonical(),
			"child_birth":  cb.date.Canonical(),
			"gap_years":    strconv.Itoa(gap),
		}
		persons := []id.PersonID{parent, child}
		claims := []id.ClaimID{c.ID, pb.claim.ID, cb.claim.ID}
		// Bounds are anniversaries: a gap of exactly the minimum passes, a day
		// past the maximum does not.
		switch {
		case cb.date.Time.Before(pb.date.Time.AddDate(cfg.GenerationalMinYears, 0, 0)):
			flags = append(flags, newFlag(FlagGenerationalSpacing, SeverityError, persons, claims,
				fmt.Sprintf("parent was %d at child's birth, minimum is %d", gap, cfg.GenerationalMinYears),
				details))
		case cb.date.Time.After(pb.date.Time.AddDate(cfg.GenerationalMaxYears, 0, 0)):
			flags = append(flags, newFlag(FlagGenerationalSpacing, SeverityWarning, persons, claims,
				fmt.Sprintf("parent was over %d at child's birth (%d completed years)", cfg.GenerationalMaxYears, gap),
				details))
		}
	}
	return flags
}

// lifeEvents are dated happenings that cannot precede the subject's birth.
// Death against birth belongs to the lifespan rule.
var lifeEvents = map[claimgraph.Predicate]bool{
	claimgraph.PredicateMarriedOn: true,
	claimgraph.PredicateMarriedAt: true,
	claimgraph.PredicateSpouseOf:  true,
	claimgraph.PredicateResidedAt: true,
	claimgraph.PredicateBuriedAt:  true,
}

var marriageEvents = map[claimgraph.Predicate]bool{
	claimgraph.PredicateMarriedOn: true,
	claimgraph.PredicateMarriedAt: true,
	claimgraph.PredicateSpouseOf:  true,
}

// checkTemporalConsistency orders each person's dated events against their
// own birth and death, and against the other party's birth for relational
// events.
func checkTemporalConsistency(s *claimgraph.Snapshot, _ RuleConfig) []Flag {
	var flags []Flag
	raise := func(persons []id.PersonID, claims []id.ClaimID, msg string, details map[string]string) {
		flags = append(flags, newFlag(FlagTemporalImpossible, SeverityError, persons, claims, msg, details))
	}

	for _, p := range s.ActivePersons() {
		birth, hasBirth := bestDated(s, p.ID, claimgraph.PredicateBornOn)
		death, hasDeath := bestDated(s, p.ID, claimgraph.PredicateDiedOn)

		for _, c := range s.ClaimsFor(p.ID) {
			if !lifeEvents[c.Predicate] {
				continue
			}
			ev, ok := c.Date()
			if !ok {
				continue
			}
			event := ev.Canonical()

			if hasBirth && definitelyBefore(ev, birth.date) {
				raise([]id.PersonID{p.ID}, []id.ClaimID{c.ID, birth.claim.ID},
					fmt.Sprintf("%s on %s precedes birth on %s", c.Predicate, event, birth.date.Canonical()),
					map[string]string{"predicate": string(c.Predicate), "event_date": event, "birth_date": birth.date.Canonical()})
			}
			if other, ok := c.Object(); ok {
				if ob, ok := bestDated(s, other, claimgraph.PredicateBornOn); ok && definitelyBefore(ev, ob.date) {
					raise([]id.PersonID{p.ID, other}, []id.ClaimID{c.ID, ob.claim.ID},
						fmt.Sprintf("%s on %s precedes the other party's birth on %s", c.Predicate, event, ob.date.Canonical()),
						map[string]string{"predicate": string(c.Predicate), "event_date": event, "other_birth_date": ob.date.Canonical()})
				}
			}
			if !hasDeath {
				continue
			}
			if marriageEvents[c.Predicate] && definitelyBefore(death.date, ev) {
				raise([]id.PersonID{p.ID}, []id.ClaimID{c.ID, death.claim.ID},
					fmt.Sprintf("%s on %s follows death on %s", c.Predicate, event, death.date.Canonical()),
					map[string]string{"predicate": string(c.Predicate), "event_date": event, "death_date": death.date.Canonical()})
			}
			if c.Predicate == claimgraph.PredicateBuriedAt && definitelyBefore(ev, death.date) {
				raise([]id.PersonID{p.ID}, []id.ClaimID{c.ID, death.claim.ID},
					fmt.Sprintf("burial on %s precedes death on %s", event, death.date.Canonical()),
					map[string]string{"predicate": string(c.Predicate), "event_date": event, "death_date": death.date.Canonical()})
			}
		}
	}
	return flags
}

// checkConflictingClaims groups each person's literal claims by predicate and
// flags predicates asserting more than one distinct normalized value.
func checkConflictingClaims(s *claimgraph.Snapshot, cfg RuleConfig) []Flag {
	exempt := make(map[claimgraph.Predicate]bool, len(cfg.ConflictExemptPredicates))
	for _, p := range cfg.ConflictExemptPredicates {
		exempt[p] = true
	}

	var flags []Flag
	for _, p := range s.ActivePersons() {
		groups := make(map[claimgraph.Predicate][]claimgraph.Claim)
		var order []claimgraph.Predicate
		for _, c := range s.ClaimsFor(p.ID) {
			if c.ObjectValue == nil || c.Predicate.IsRelational() || exempt[c.Predicate] {
				continue
			}
			if _, seen := groups[c.Predicate]; !seen {
				order = append(order, c.Predicate)
			}
			groups[c.Predicate] = append(groups[c.Predicate], c)
		}
		sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

		for _, pred := range order {
			claims := groups[pred]
			values := make(map[string]struct{})
			for _, c := range claims {
				values[claimgraph.NormalizeValue(pred, c.Value())] = struct{}{}
			}
			if len(values) < 2 {
				continue
			}
			distinct := make([]string, 0, len(values))
			for v := range values {
				distinct = append(distinct, v)
			}
			sort.Strings(distinct)
			ids := make([]id.ClaimID, len(claims))
			for i, c := range claims {
				ids[i] = c.ID
			}
			flags = append(flags, newFlag(FlagConflictingClaims, SeverityWarning, []id.PersonID{p.ID}, ids,
				fmt.Sprintf("%d distinct values for %s", len(distinct), pred),
				map[string]string{"predicate": string(pred), "values": strings.Join(distinct, "; ")}))
		}
	}
	return flags
}
