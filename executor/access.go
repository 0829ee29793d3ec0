package executor

import "github.com/tos-network/tos-core/model"

// unionFind backs conflictGroups, which partitions transaction indices
// into groups such that two transactions sharing any access-set cell
// always land in the same group (spec §4.7: "two transactions conflict iff
// they read or write any overlapping set of ... cells"), by a union-find
// over the access-set keys each transaction's payload statically declares.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}

// accessSets returns the access-set keys for every transaction in block
// order, in the format model.Payload.AccessSet produces.
func accessSets(txs []*model.Transaction) [][]string {
	sets := make([][]string, len(txs))
	for i, tx := range txs {
		sets[i] = tx.Data.AccessSet(tx.Source)
	}
	return sets
}

// conflictGroups groups transaction indices by shared access-set cells.
// Each returned group is sorted ascending by tx index; groups themselves
// are ordered by their lowest member index (spec §4.7's "group order by
// lowest tx index").
func conflictGroups(sets [][]string) [][]int {
	uf := newUnionFind(len(sets))
	lastWriter := make(map[string]int, len(sets)*2)
	for i, keys := range sets {
		for _, k := range keys {
			if j, ok := lastWriter[k]; ok {
				uf.union(i, j)
			}
			lastWriter[k] = i
		}
	}

	byRoot := make(map[int][]int)
	for i := range sets {
		r := uf.find(i)
		byRoot[r] = append(byRoot[r], i)
	}

	groups := make([][]int, 0, len(byRoot))
	for _, members := range byRoot {
		groups = append(groups, members)
	}
	// insertion sort by lowest member; group counts are small relative to
	// a block's transaction count, same rationale as model.SortHashes.
	for i := 1; i < len(groups); i++ {
		for j := i; j > 0 && groups[j][0] < groups[j-1][0]; j-- {
			groups[j], groups[j-1] = groups[j-1], groups[j]
		}
	}
	return groups
}
