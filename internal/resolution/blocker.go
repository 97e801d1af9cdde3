package resolution

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"lineageforge/internal/claimgraph"
	id "lineageforge/pkg/domain"
)

// Blocker narrows the quadratic pair space to persons sharing enough
// normalized name tokens. Persons without name claims never pair.
type Blocker struct {
	MinOverlap int
	// MaxCandidatesPerPerson caps each person's candidates by overlap, highest
	// first. Zero means unlimited.
	MaxCandidatesPerPerson int
	Workers                int
}

type candidate struct {
	other   int
	overlap int
}

// Block returns every unordered pair of active persons whose name token sets
// share at least MinOverlap tokens, sorted by (A, B).
func (b Blocker) Block(ctx context.Context, s *claimgraph.Snapshot) ([]Pair, error) {
	active := s.ActivePersons()
	tokens := make([][]string, len(active))

	g, gctx := errgroup.WithContext(ctx)
	if b.Workers > 0 {
		g.SetLimit(b.Workers)
	}
	for i, p := range active {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tokens[i] = personTokens(s, p.ID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	index := make(map[string][]int)
	for i, toks := range tokens {
		for _, tok := range toks {
			index[tok] = append(index[tok], i)
		}
	}

	minOverlap := max(b.MinOverlap, 1)
	seen := make(map[Pair]struct{})
	for i, toks := range tokens {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		overlap := make(map[int]int)
		for _, tok := range toks {
			for _, j := range index[tok] {
				if j != i {
					overlap[j]++
				}
			}
		}
		cands := make([]candidate, 0, len(overlap))
		for j, n := range overlap {
			if n >= minOverlap {
				cands = append(cands, candidate{other: j, overlap: n})
			}
		}
		// active is sorted by id, so index order is id order.
		sort.Slice(cands, func(x, y int) bool {
			if cands[x].overlap != cands[y].overlap {
				return cands[x].overlap > cands[y].overlap
			}
			return cands[x].other < cands[y].other
		})
		if b.MaxCandidatesPerPerson > 0 && len(cands) > b.MaxCandidatesPerPerson {
			cands = cands[:b.MaxCandidatesPerPerson]
		}
		for _, c := range cands {
			seen[NewPair(active[i].ID, active[c.other].ID)] = struct{}{}
		}
	}

	pairs := make([]Pair, 0, len(seen))
	for p := range seen {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Less(pairs[j]) })
	return pairs, nil
}

func personTokens(s *claimgraph.Snapshot, pid id.PersonID) []string {
	return claimgraph.NameTokens(s.ClaimsWithPredicate(pid,
		claimgraph.PredicateHasName, claimgraph.PredicateHasGivenName, claimgraph.PredicateHasSurname))
}
