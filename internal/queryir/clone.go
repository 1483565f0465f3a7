package queryir

// Mapping maps original row sources to their clones.
type Mapping map[SourceID]SourceID

// Clone copies p into fresh row sources of the same arena. Nested plans
// (subquery sources, Subquery and CorrelateCollection children) are cloned
// too, so no clause, expression or plan is shared between p and the clone.
// References to sources outside p are left untouched.
func Clone(p *Plan) (*Plan, Mapping) {
	m := Mapping{}
	return cloneInto(p, m), m
}

func cloneInto(p *Plan, m Mapping) *Plan {
	a := p.Arena
	for _, id := range p.Sources() {
		src := a.Source(id)
		if src.Kind == SourceSubquery {
			m[id] = a.NewSubquerySource(src.Name, cloneInto(src.Plan, m))
		} else {
			m[id] = a.NewEntitySource(src.Name, src.Entity)
		}
	}

	c := &Plan{
		Arena:  a,
		From:   m[p.From],
		Body:   make([]Clause, 0, len(p.Body)),
		Result: p.Result,
	}
	for _, cl := range p.Body {
		switch x := cl.(type) {
		case *Join:
			c.Body = append(c.Body, &Join{
				Source:   m[x.Source],
				OuterKey: cloneExpr(x.OuterKey, m),
				InnerKey: cloneExpr(x.InnerKey, m),
			})
		case *Where:
			c.Body = append(c.Body, &Where{Predicate: cloneExpr(x.Predicate, m)})
		case *OrderBy:
			c.Body = append(c.Body, &OrderBy{Orderings: cloneOrderings(x.Orderings, m)})
		}
	}
	c.Selector = cloneExpr(p.Selector, m)
	return c
}

func cloneOrderings(os []Ordering, m Mapping) []Ordering {
	out := make([]Ordering, len(os))
	for i, o := range os {
		out[i] = Ordering{Expr: cloneExpr(o.Expr, m), Direction: o.Direction}
	}
	return out
}

// cloneExpr remaps e through m and clones any nested plans it carries.
func cloneExpr(e Expr, m Mapping) Expr {
	return Transform(e, func(x Expr) Expr {
		switch n := x.(type) {
		case *SourceRef:
			n.Source = m.apply(n.Source)
		case *Subquery:
			n.Plan = cloneInto(n.Plan, m)
			if n.Correlation != nil {
				n.Correlation.Parent = m.apply(n.Correlation.Parent)
			}
		case *CorrelateCollection:
			n.Child = cloneInto(n.Child, m)
		}
		return x
	})
}

// AdjustAfterCloning rewrites every row source reference in e through m,
// returning a new expression. Nested plans are not cloned.
func AdjustAfterCloning(e Expr, m Mapping) Expr {
	return Transform(e, func(x Expr) Expr {
		switch n := x.(type) {
		case *SourceRef:
			n.Source = m.apply(n.Source)
		case *Subquery:
			if n.Correlation != nil {
				n.Correlation.Parent = m.apply(n.Correlation.Parent)
			}
		}
		return x
	})
}

// AdjustOrderings applies AdjustAfterCloning to each ordering expression.
func AdjustOrderings(os []Ordering, m Mapping) []Ordering {
	out := make([]Ordering, len(os))
	for i, o := range os {
		out[i] = Ordering{Expr: AdjustAfterCloning(o.Expr, m), Direction: o.Direction}
	}
	return out
}

func (m Mapping) apply(id SourceID) SourceID {
	if c, ok := m[id]; ok {
		return c
	}
	return id
}
