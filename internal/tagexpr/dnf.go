package tagexpr

// ToDNF rewrites expr into disjunctive normal form: a (possibly trivial) Or
// of And-chains of (possibly negated) atoms. It pushes negations down via De
// Morgan's laws first, then distributes And over Or, and finally elides
// duplicate conjuncts within each resulting disjunct.
//
// AlwaysTrue and a bare Atom/Not(Atom) are already in DNF and are returned
// unchanged save for conjunct deduplication.
func ToDNF(expr Expr) Expr {
	pushed := pushNegations(expr, false)
	distributed := distribute(pushed)

	return dedupDisjuncts(distributed)
}

// pushNegations eliminates double negation and pushes ! through & and |
// (De Morgan), tracking whether the current subtree is under an odd number
// of negations via `negate`.
func pushNegations(e Expr, negate bool) Expr {
	switch v := e.(type) {
	case AlwaysTrue:
		// !true is never constructed by the parser (AlwaysTrue only appears
		// as a whole predicate, never inside a Not), so negate is ignored.
		return AlwaysTrue{}
	case Atom:
		if negate {
			return Not{X: v}
		}

		return v
	case Not:
		return pushNegations(v.X, !negate)
	case And:
		x := pushNegations(v.X, negate)
		y := pushNegations(v.Y, negate)

		if negate {
			return Or{X: x, Y: y}
		}

		return And{X: x, Y: y}
	case Or:
		x := pushNegations(v.X, negate)
		y := pushNegations(v.Y, negate)

		if negate {
			return And{X: x, Y: y}
		}

		return Or{X: x, Y: y}
	default:
		return e
	}
}

// distribute applies And-over-Or distribution until the tree is a disjunction
// of conjunctions of literals (Atom or Not(Atom)).
func distribute(e Expr) Expr {
	switch v := e.(type) {
	case And:
		x := distribute(v.X)
		y := distribute(v.Y)

		if or, ok := x.(Or); ok {
			return distribute(Or{
				X: And{X: or.X, Y: y},
				Y: And{X: or.Y, Y: y},
			})
		}

		if or, ok := y.(Or); ok {
			return distribute(Or{
				X: And{X: x, Y: or.X},
				Y: And{X: x, Y: or.Y},
			})
		}

		return And{X: x, Y: y}
	case Or:
		return Or{X: distribute(v.X), Y: distribute(v.Y)}
	default:
		return e
	}
}

// dedupDisjuncts walks the Or-of-And tree produced by distribute and removes
// conjuncts that repeat (by atomKey and negation) within the same disjunct.
func dedupDisjuncts(e Expr) Expr {
	switch v := e.(type) {
	case Or:
		return Or{X: dedupDisjuncts(v.X), Y: dedupDisjuncts(v.Y)}
	case And:
		var literals []Expr

		collectConjuncts(v, &literals)

		return rebuildConjunction(dedupLiterals(literals))
	default:
		return e
	}
}

func collectConjuncts(e Expr, into *[]Expr) {
	if and, ok := e.(And); ok {
		collectConjuncts(and.X, into)
		collectConjuncts(and.Y, into)

		return
	}

	*into = append(*into, e)
}

func literalKey(e Expr) string {
	switch v := e.(type) {
	case Atom:
		return atomKey(v)
	case Not:
		if a, ok := v.X.(Atom); ok {
			return "!" + atomKey(a)
		}
	}

	return e.String()
}

func dedupLiterals(literals []Expr) []Expr {
	seen := make(map[string]bool, len(literals))
	out := make([]Expr, 0, len(literals))

	for _, lit := range literals {
		key := literalKey(lit)
		if seen[key] {
			continue
		}

		seen[key] = true

		out = append(out, lit)
	}

	return out
}

func rebuildConjunction(literals []Expr) Expr {
	if len(literals) == 0 {
		return AlwaysTrue{}
	}

	result := literals[0]
	for _, lit := range literals[1:] {
		result = And{X: result, Y: lit}
	}

	return result
}

// Split returns the disjuncts of a DNF expression, in left-to-right order,
// as a flat sequence of standalone And-chains (or single literals). This is
// the shape internal/trcupdate needs when writing one expected-result
// alternative per disjunct back to the database.
func Split(dnfExpr Expr) []Expr {
	switch v := dnfExpr.(type) {
	case Or:
		return append(Split(v.X), Split(v.Y)...)
	default:
		return []Expr{v}
	}
}
