package validation

import (
	"fmt"
	"sort"
	"strings"

	"lineageforge/internal/claimgraph"
	id "lineageforge/pkg/domain"
)

type edge struct {
	from, to id.PersonID
}

// parentageGraph is the parent -> child adjacency over active persons, with
// the claims that assert each edge.
type parentageGraph struct {
	nodes  []id.PersonID
	adj    map[id.PersonID][]id.PersonID
	claims map[edge][]id.ClaimID
}

func buildParentageGraph(s *claimgraph.Snapshot) parentageGraph {
	g := parentageGraph{
		adj:    make(map[id.PersonID][]id.PersonID),
		claims: make(map[edge][]id.ClaimID),
	}
	for _, c := range s.Claims() {
		parent, child, ok := parentChild(c)
		if !ok || !s.IsActive(parent) || !s.IsActive(child) {
			continue
		}
		e := edge{from: parent, to: child}
		if _, seen := g.claims[e]; !seen {
			g.adj[parent] = append(g.adj[parent], child)
		}
		g.claims[e] = append(g.claims[e], c.ID)
	}
	for _, p := range s.ActivePersons() {
		g.nodes = append(g.nodes, p.ID)
		children := g.adj[p.ID]
		sort.Slice(children, func(i, j int) bool { return children[i].Less(children[j]) })
	}
	return g
}

const (
	white = iota
	gray
	black
)

type frame struct {
	node id.PersonID
	next int
}

// findCycles walks the graph depth first with an explicit stack. Every back
// edge closes a cycle made of the path from its target to the current node.
// Cycles are returned once per member set, rotated to start at their lowest
// id, in discovery order.
func (g parentageGraph) findCycles() [][]id.PersonID {
	color := make(map[id.PersonID]int, len(g.nodes))
	pathIndex := make(map[id.PersonID]int)
	seen := make(map[string]struct{})
	var cycles [][]id.PersonID

	for _, root := range g.nodes {
		if color[root] != white {
			continue
		}
		stack := []frame{{node: root}}
		path := []id.PersonID{root}
		color[root] = gray
		pathIndex[root] = 0

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			children := g.adj[top.node]
			if top.next >= len(children) {
				color[top.node] = black
				delete(pathIndex, top.node)
				stack = stack[:len(stack)-1]
				path = path[:len(path)-1]
				continue
			}
			child := children[top.next]
			top.next++

			switch color[child] {
			case white:
				color[child] = gray
				pathIndex[child] = len(path)
				path = append(path, child)
				stack = append(stack, frame{node: child})
			case gray:
				cycle := rotateToLowest(path[pathIndex[child]:])
				key := memberKey(cycle)
				if _, dup := seen[key]; !dup {
					seen[key] = struct{}{}
					cycles = append(cycles, cycle)
				}
			}
		}
	}
	return cycles
}

func rotateToLowest(members []id.PersonID) []id.PersonID {
	low := 0
	for i, m := range members {
		if m.Less(members[low]) {
			low = i
		}
	}
	out := make([]id.PersonID, 0, len(members))
	out = append(out, members[low:]...)
	return append(out, members[:low]...)
}

func memberKey(members []id.PersonID) string {
	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = m.String()
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

// checkCircularRelationships raises one flag per distinct parentage cycle.
func checkCircularRelationships(s *claimgraph.Snapshot, _ RuleConfig) []Flag {
	g := buildParentageGraph(s)
	var flags []Flag
	for _, cycle := range g.findCycles() {
		var claims []id.ClaimID
		names := make([]string, len(cycle))
		for i, from := range cycle {
			to := cycle[(i+1)%len(cycle)]
			claims = append(claims, g.claims[edge{from: from, to: to}]...)
			names[i] = from.String()
		}
		sort.Slice(claims, func(i, j int) bool { return claims[i].Less(claims[j]) })
		flags = append(flags, newFlag(FlagCircularRelation, SeverityError, cycle, claims,
			fmt.Sprintf("%d persons are each other's ancestors", len(cycle)),
			map[string]string{"cycle": strings.Join(names, " -> ")}))
	}
	return flags
}
