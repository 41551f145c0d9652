package orchestrator

import "github.com/ccworker/pruntime-core/mq"

// Version is this binary's own pruntime version, compared against
// incoming RetirePRuntime conditions (spec.md's supplemented retirement
// feature, recovered from original_source/: a worker that matches a
// retirement condition must stop mining rather than silently keep going).
type Version struct {
	Major, Minor, Patch uint32
}

// Matches reports whether v satisfies a retirement condition.
func (v Version) Matches(c mq.RetireCondition) bool {
	switch c.Kind {
	case mq.VersionIs:
		return v.Major == c.Major && v.Minor == c.Minor && v.Patch == c.Patch
	case mq.VersionLessThan:
		if v.Major != c.Major {
			return v.Major < c.Major
		}
		if v.Minor != c.Minor {
			return v.Minor < c.Minor
		}
		return v.Patch < c.Patch
	default:
		return false
	}
}

// handleRetirePRuntime accumulates a retirement condition and aborts the
// process if this binary's own version matches it (spec.md §7 "Fatal:
// retirement"). Conditions accumulate rather than replace one another: a
// worker already past one retirement deadline must not un-retire because
// a later, unrelated condition arrived.
func (o *Orchestrator) handleRetirePRuntime(ev mq.RetirePRuntime) {
	o.retireConditions = append(o.retireConditions, ev.Condition)
	if o.version.Matches(ev.Condition) {
		o.abortRetired(ev.Condition)
	}
}

// abortRetired calls the o.onRetire hook (rather than errs.Fatal directly)
// so tests can replace that hook without having to override the
// package-global errs.AbortProcess.
func (o *Orchestrator) abortRetired(c mq.RetireCondition) {
	logger.Warn("pruntime version matches a retirement condition, aborting", "condition", c)
	o.onRetire(c)
}
