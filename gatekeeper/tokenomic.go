// Package gatekeeper implements the Gatekeeper Engine (spec.md §4.2,
// component C6) and its tokenomic update rules (spec.md §4.2.1, §9).
package gatekeeper

import "github.com/ccworker/pruntime-core/common/fixedpoint"

// Params are the tokenomic constants (spec.md §4.2.1). config.Config.Tokenomic
// loads a set from the config file, but the orchestrator builds its engine
// with DefaultParams, so the loaded set does not reach the engine.
type Params struct {
	PhaRate      fixedpoint.Fixed
	Rho          fixedpoint.Fixed
	SlashRate    fixedpoint.Fixed
	BudgetPerSec fixedpoint.Fixed
	VMax         fixedpoint.Fixed
	Alpha        fixedpoint.Fixed
}

// DefaultParams returns the spec.md test-default parameter set.
func DefaultParams() Params {
	return Params{
		PhaRate:      fixedpoint.FromInt(1),
		Rho:          fixedpoint.FromFloat64(1.0002),
		SlashRate:    fixedpoint.FromFloat64(0.001),
		BudgetPerSec: fixedpoint.FromInt(10),
		VMax:         fixedpoint.FromInt(30000),
		Alpha:        fixedpoint.FromFloat64(0.0287),
	}
}

// TokenomicInfo is the per-worker economic record (spec.md §3).
type TokenomicInfo struct {
	V                  fixedpoint.Fixed
	VLast              fixedpoint.Fixed
	VUpdateAtMs        uint64
	IterationLast      uint64
	ChallengeTimeLastMs uint64
	PBench             fixedpoint.Fixed
	PInstant           fixedpoint.Fixed
	ConfidenceLevel    int
}

// ConfScore maps confidence_level to its scoring multiplier (spec.md
// §4.2.1).
func ConfScore(level int) fixedpoint.Fixed {
	switch {
	case level >= 1 && level <= 3:
		return fixedpoint.FromInt(1)
	case level == 4:
		return fixedpoint.FromFloat64(0.8)
	case level == 5:
		return fixedpoint.FromFloat64(0.7)
	default:
		return fixedpoint.Zero()
	}
}

// Share computes sqrt(v^2 + (2*p_instant*conf_score(level))^2) (spec.md
// §4.2.1).
func (t *TokenomicInfo) Share() fixedpoint.Fixed {
	vSq := t.V.Mul(t.V)
	term := fixedpoint.FromInt(2).Mul(t.PInstant).Mul(ConfScore(t.ConfidenceLevel))
	termSq := term.Mul(term)
	return vSq.Add(termSq).Sqrt()
}

// UpdatePInstant recomputes p_instant from the iteration delta observed
// since the last challenge (spec.md §4.2.1). It is a no-op if nowMs is not
// strictly after challenge_time_last_ms. It does not itself advance
// IterationLast/ChallengeTimeLastMs — the caller (heartbeat handling, which
// knows the event's reported iteration count) does that once the new
// p_instant has been folded into Share().
func (t *TokenomicInfo) UpdatePInstant(nowMs uint64, iters uint64) {
	if nowMs <= t.ChallengeTimeLastMs {
		return
	}
	dtMs := nowMs - t.ChallengeTimeLastMs
	dt := fixedpoint.FromInt(int64(dtMs)).Div(fixedpoint.FromInt(1000))
	deltaIters := fixedpoint.FromInt(0)
	if iters > t.IterationLast {
		deltaIters = fixedpoint.FromInt(int64(iters - t.IterationLast))
	}
	p := deltaIters.Div(dt).Mul(fixedpoint.FromInt(6))
	ceiling := t.PBench.Mul(fixedpoint.FromFloat64(1.2))
	t.PInstant = p.Min(ceiling)
}

// UpdateVIdle applies the idle-growth rule (spec.md §4.2.1, "Case 1").
func (t *TokenomicInfo) UpdateVIdle(p Params) {
	costIdle := t.PBench.Mul(p.Alpha).Add(fixedpoint.FromInt(15)).Div(p.PhaRate).Div(fixedpoint.FromInt(365))
	mult := fixedpoint.FromInt(1)
	if !t.PBench.IsZero() {
		mult = t.PInstant.Div(t.PBench)
	}
	growth := p.Rho.Sub(fixedpoint.FromInt(1)).Mul(t.V).Add(costIdle)
	t.V = t.V.Add(mult.Mul(growth)).Min(p.VMax)
}

// UpdateVHeartbeat applies the heartbeat payout rule (spec.md §4.2.1). It
// returns the payout to append to the block's settle list, or zero
// whenever any guard fires (invariant I5).
func (t *TokenomicInfo) UpdateVHeartbeat(sumShare fixedpoint.Fixed, nowMs uint64, p Params) fixedpoint.Fixed {
	if sumShare.IsZero() || t.V.Cmp(t.VLast) < 0 || nowMs <= t.VUpdateAtMs {
		return fixedpoint.Zero()
	}
	dv := t.V.Sub(t.VLast)
	dtMs := nowMs - t.VUpdateAtMs
	dt := fixedpoint.FromInt(int64(dtMs)).Div(fixedpoint.FromInt(1000))
	budget := p.BudgetPerSec.Mul(dt)
	ceiling := t.Share().Div(sumShare).Mul(budget)
	w := dv.Max(fixedpoint.Zero()).Min(ceiling)

	newV := t.V.Sub(w)
	t.V = newV
	t.VLast = newV
	t.VUpdateAtMs = nowMs
	return w
}

// UpdateVSlash applies the slash rule (spec.md §4.2.1, cases 3/4).
func (t *TokenomicInfo) UpdateVSlash(p Params) {
	t.V = t.V.Sub(t.V.Mul(p.SlashRate))
}
