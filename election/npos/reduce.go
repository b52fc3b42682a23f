package npos

import (
	"github.com/substrate-debug-kit/offline-election/common"
)

// Reduce removes edges from staked assignments without changing any voter's
// total or any target's total. Edges form a bipartite voter/target graph;
// every cycle in it is cancelled by shifting stake around the cycle until one
// edge drops to zero. The result is a forest. Zero-stake edges are dropped
// too. Returns the number of edges removed.
func Reduce(staked []StakedAssignment) int {
	before := 0
	for _, a := range staked {
		before += len(a.Distribution)
	}

	for vi := range staked {
		mergeDuplicates(&staked[vi])
	}
	f := newForest(len(staked))
	for vi := range staked {
		for ei, e := range staked[vi].Distribution {
			if e.Stake > 0 {
				f.add(staked, vi, ei)
			}
		}
	}

	after := 0
	for vi := range staked {
		a := &staked[vi]
		kept := a.Distribution[:0]
		for _, e := range a.Distribution {
			if e.Stake > 0 {
				kept = append(kept, e)
			}
		}
		a.Distribution = kept
		after += len(kept)
	}
	return before - after
}

// mergeDuplicates folds repeated targets into their first edge.
func mergeDuplicates(a *StakedAssignment) {
	seen := make(map[common.AccountID]int, len(a.Distribution))
	for i, e := range a.Distribution {
		if first, ok := seen[e.Target]; ok {
			a.Distribution[first].Stake += e.Stake
			a.Distribution[i].Stake = 0
			continue
		}
		seen[e.Target] = i
	}
}

// edgeRef locates an edge inside the staked assignments.
type edgeRef struct {
	voter int
	edge  int
}

// forest keeps a spanning forest of the edges seen so far with parent
// pointers. Voters are nodes [0, voters); targets are allocated after them.
type forest struct {
	voters  int
	targets map[common.AccountID]int
	parent  []int
	// up holds the edge linking a node to its parent.
	up []edgeRef
}

func newForest(voters int) *forest {
	f := &forest{voters: voters, targets: map[common.AccountID]int{}}
	f.parent = make([]int, voters)
	f.up = make([]edgeRef, voters)
	for i := range f.parent {
		f.parent[i] = -1
	}
	return f
}

func (f *forest) targetNode(who common.AccountID) int {
	if n, ok := f.targets[who]; ok {
		return n
	}
	n := len(f.parent)
	f.targets[who] = n
	f.parent = append(f.parent, -1)
	f.up = append(f.up, edgeRef{})
	return n
}

func (f *forest) pathToRoot(n int) []int {
	path := []int{n}
	for f.parent[n] >= 0 {
		n = f.parent[n]
		path = append(path, n)
	}
	return path
}

// reroot makes n the root of its tree by reversing the path to the old root.
func (f *forest) reroot(n int) {
	prev, prevEdge := -1, edgeRef{}
	for cur := n; cur >= 0; {
		next, nextEdge := f.parent[cur], f.up[cur]
		f.parent[cur], f.up[cur] = prev, prevEdge
		prev, prevEdge = cur, nextEdge
		cur = next
	}
}

func (f *forest) link(child, parent int, e edgeRef) {
	f.reroot(child)
	f.parent[child] = parent
	f.up[child] = e
}

// add inserts edge (vi, ei). If it closes a cycle the cycle is cancelled and
// the zeroed edges are cut from the forest.
func (f *forest) add(staked []StakedAssignment, vi, ei int) {
	ref := edgeRef{voter: vi, edge: ei}
	v := vi
	t := f.targetNode(staked[vi].Distribution[ei].Target)

	vPath := f.pathToRoot(v)
	tPath := f.pathToRoot(t)
	if vPath[len(vPath)-1] != tPath[len(tPath)-1] {
		f.link(v, t, ref)
		return
	}

	// Trim the shared part above the lowest common ancestor.
	for len(vPath) > 1 && len(tPath) > 1 && vPath[len(vPath)-2] == tPath[len(tPath)-2] {
		vPath = vPath[:len(vPath)-1]
		tPath = tPath[:len(tPath)-1]
	}

	// Cycle: v -> t over the new edge, t up to the ancestor, down to v.
	cycle := []edgeRef{ref}
	cycleChild := []int{-1}
	for _, n := range tPath[:len(tPath)-1] {
		cycle = append(cycle, f.up[n])
		cycleChild = append(cycleChild, n)
	}
	for i := len(vPath) - 2; i >= 0; i-- {
		cycle = append(cycle, f.up[vPath[i]])
		cycleChild = append(cycleChild, vPath[i])
	}

	stakeOf := func(r edgeRef) *VoteWeight {
		return &staked[r.voter].Distribution[r.edge].Stake
	}
	// Alternate edges around the cycle share a node, so moving the same
	// amount from odd to even positions (or back) keeps every node's total.
	minOf := func(parity int) VoteWeight {
		m := *stakeOf(cycle[parity])
		for i := parity; i < len(cycle); i += 2 {
			m = min(m, *stakeOf(cycle[i]))
		}
		return m
	}
	minEven, minOdd := minOf(0), minOf(1)
	decrease, delta := 1, minOdd
	if minEven < minOdd {
		decrease, delta = 0, minEven
	}
	for i, r := range cycle {
		if i%2 == decrease {
			*stakeOf(r) -= delta
		} else {
			*stakeOf(r) += delta
		}
	}

	for i := 1; i < len(cycle); i++ {
		if *stakeOf(cycle[i]) == 0 {
			f.parent[cycleChild[i]] = -1
		}
	}
	if *stakeOf(ref) > 0 {
		f.link(v, t, ref)
	}
}
