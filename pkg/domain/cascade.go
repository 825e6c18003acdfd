package domain

import (
	"slices"
)

// Cascade is the resolved outcome of one mutation against a scratch copy.
type Cascade struct {
	// Before is the snapshot the cascade started from.
	Before Snapshot
	// After is the fixed point reached.
	After Snapshot
	// Effects holds one entry per parameter whose value differs between Before
	// and After, in the order the parameters first changed. Each effect carries
	// the cause of its final transition.
	Effects []ChangeEffect
	// Passes counts the evaluation passes that produced changes.
	Passes int
}

// MaxPasses bounds the evaluation passes for a catalog of n parameters.
func MaxPasses(n int) int { return n + 1 }

// ResolveCascade applies requested to a scratch copy of base, evaluates rules
// to a fixed point, and returns the net effects. It never touches base.
//
// Requested assignments must already be validated by the caller. Rules may not
// change immutable parameters: such a cascade fails with Immutable. The
// AtLeastOneOf invariant is checked by the caller, after the fixed point.
func ResolveCascade(rules *RuleSet, params []Parameter, base Snapshot, requested []Assignment) (Cascade, error) {
	meta := make(map[string]Parameter, len(params))
	for _, p := range params {
		meta[p.Key] = p
	}
	sc := newScratch(base)
	var trigger string
	for _, a := range requested {
		if trigger == "" {
			trigger = a.Key
		}
		sc.set(a.Key, a.Value, UserRequested())
	}
	sc.pass++

	limit := MaxPasses(len(params))
	frontier := sc.touched()
	for {
		effects := rules.EvaluateFor(sc, frontier)
		if len(effects) == 0 {
			// Worklist is quiet; confirm with a full pass before declaring a fixed point.
			effects = rules.Evaluate(sc)
			if len(effects) == 0 {
				break
			}
		}
		if sc.passes >= limit {
			return Cascade{}, NonConvergenceError(trigger, sc.passes)
		}
		frontier = frontier[:0]
		for _, eff := range effects {
			if p, ok := meta[eff.Key]; ok && !p.Mutable {
				return Cascade{}, ImmutableError(eff.Key, "rule "+eff.Cause.String()+" cannot change a read-only parameter")
			}
			sc.set(eff.Key, eff.NewValue, eff.Cause)
			frontier = append(frontier, eff.Key)
		}
		sc.passes++
		sc.pass++
	}

	after := NewSnapshot(sc.values)
	return Cascade{
		Before:  base,
		After:   after,
		Effects: sc.netEffects(),
		Passes:  sc.passes,
	}, nil
}

// scratch is the mutable working copy a cascade runs against. It implements
// RuleView.
type scratch struct {
	base    Snapshot
	values  map[string]Value
	recency map[string]int
	order   []string
	causes  map[string]Cause
	pass    int
	passes  int
}

func newScratch(base Snapshot) *scratch {
	return &scratch{
		base:    base,
		values:  base.Map(),
		recency: make(map[string]int),
		causes:  make(map[string]Cause),
		pass:    1,
	}
}

func (s *scratch) Get(key string) (Value, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *scratch) Base(key string) (Value, bool) { return s.base.Get(key) }

func (s *scratch) Recency(key string) int { return s.recency[key] }

func (s *scratch) set(key string, v Value, cause Cause) {
	if cur, ok := s.values[key]; ok && cur.Equal(v) {
		return
	}
	s.values[key] = v
	if _, seen := s.recency[key]; !seen {
		s.order = append(s.order, key)
	}
	s.recency[key] = s.pass
	s.causes[key] = cause
}

func (s *scratch) touched() []string {
	return slices.Clone(s.order)
}

func (s *scratch) netEffects() []ChangeEffect {
	var out []ChangeEffect
	for _, key := range s.order {
		before, _ := s.base.Get(key)
		after := s.values[key]
		if before.Equal(after) {
			continue
		}
		out = append(out, ChangeEffect{Key: key, OldValue: before, NewValue: after, Cause: s.causes[key]})
	}
	return out
}
