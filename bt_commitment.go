package regalloc

import "sort"

// Per-real-register commitment maps for the backtracking allocator: the spans
// of program points at which the register is already taken, either by a fixed
// RealRange of the input or by a VirtualRange assigned earlier.

type (
	commitSpan struct {
		first, last InstPoint
		// owner is the committed VirtualRange, or VirtualRangeIxInvalid for a
		// span of a fixed RealRange.
		owner VirtualRangeIx
	}

	// commitment is one register's committed spans, sorted and non-overlapping.
	commitment struct {
		spans []commitSpan
	}
)

// search returns the position of the first span ending at or after p.
func (c *commitment) search(p InstPoint) int {
	return sort.Search(len(c.spans), func(i int) bool { return c.spans[i].last >= p })
}

// canFit reports whether every fragment fits without overlapping any span.
func (c *commitment) canFit(env *fragEnv, frags []RangeFragIx) bool {
	for _, fix := range frags {
		fr := &env.frags[fix]
		if i := c.search(fr.First); i < len(c.spans) && c.spans[i].first <= fr.Last {
			return false
		}
	}
	return true
}

// add commits every fragment for owner. The caller must have checked canFit.
func (c *commitment) add(env *fragEnv, frags []RangeFragIx, owner VirtualRangeIx) {
	for _, fix := range frags {
		fr := &env.frags[fix]
		i := c.search(fr.First)
		if validationEnabled {
			if i < len(c.spans) && c.spans[i].first <= fr.Last {
				panic("BUG: committing an overlapping span")
			}
		}
		c.spans = append(c.spans, commitSpan{})
		copy(c.spans[i+1:], c.spans[i:])
		c.spans[i] = commitSpan{first: fr.First, last: fr.Last, owner: owner}
	}
}

// removeOwner withdraws every span committed for owner.
func (c *commitment) removeOwner(owner VirtualRangeIx) {
	out := c.spans[:0]
	for _, s := range c.spans {
		if s.owner != owner {
			out = append(out, s)
		}
	}
	c.spans = out
}

// overlappingOwners appends the owners of spans overlapping the fragments to
// out, deduplicated. A fixed span reports VirtualRangeIxInvalid.
func (c *commitment) overlappingOwners(env *fragEnv, frags []RangeFragIx, out []VirtualRangeIx) []VirtualRangeIx {
	for _, fix := range frags {
		fr := &env.frags[fix]
		for i := c.search(fr.First); i < len(c.spans) && c.spans[i].first <= fr.Last; i++ {
			dup := false
			for _, o := range out {
				if o == c.spans[i].owner {
					dup = true
					break
				}
			}
			if !dup {
				out = append(out, c.spans[i].owner)
			}
		}
	}
	return out
}
