package borrowck

import (
	"slices"
	"sort"

	"github.com/xtgo/set"
)

// Sets of vars and points are kept as sorted, duplicate-free int slices.

func sortedSet(xs []int) []int { return set.Ints(append([]int(nil), xs...)) }

func union(a, b []int) []int {
	if len(b) == 0 {
		return a
	}
	return set.IntsDo(set.Union, a[:len(a):len(a)], b...)
}

func diff(a, b []int) []int {
	if len(a) == 0 || len(b) == 0 {
		return a
	}
	return set.IntsDo(set.Diff, a[:len(a):len(a)], b...)
}

func intersects(a, b []int) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return set.IntsChk(set.IsInter, a[:len(a):len(a)], b...)
}

func has(a []int, x int) bool {
	i := sort.SearchInts(a, x)
	return i < len(a) && a[i] == x
}

// Liveness holds, per point, the vars whose current value may still be
// used on some path.
type Liveness struct {
	In  [][]int
	Out [][]int
	// Rounds counts block visits until the fixed point.
	Rounds int
}

func (lv *Liveness) LiveIn(point, v int) bool  { return has(lv.In[point], v) }
func (lv *Liveness) LiveOut(point, v int) bool { return has(lv.Out[point], v) }

func transfer(ev *Event, out []int) []int {
	return union(diff(out, sortedSet(ev.Defs)), sortedSet(ev.Uses))
}

// ComputeLiveness runs the backward dataflow to a fixed point with a
// worklist over blocks, then spreads the block results to points.
func ComputeLiveness(c *CFG) *Liveness {
	nb := len(c.Blocks)
	blockIn := make([][]int, nb)
	blockOut := make([][]int, nb)

	queued := make([]bool, nb)
	work := make([]BlockID, 0, nb)
	for i := nb - 1; i >= 0; i-- {
		work = append(work, BlockID(i))
		queued[i] = true
	}
	rounds := 0
	for len(work) > 0 {
		b := work[0]
		work = work[1:]
		queued[b] = false
		rounds++

		blk := c.Blocks[b]
		var out []int
		for _, s := range blk.Succs {
			out = union(out, blockIn[s])
		}
		blockOut[b] = out
		live := out
		for i := len(blk.Events) - 1; i >= 0; i-- {
			live = transfer(&blk.Events[i], live)
		}
		if slices.Equal(live, blockIn[b]) {
			continue
		}
		blockIn[b] = live
		for _, p := range blk.Preds {
			if !queued[p] {
				queued[p] = true
				work = append(work, p)
			}
		}
	}

	lv := &Liveness{
		In:     make([][]int, c.NumPoints()),
		Out:    make([][]int, c.NumPoints()),
		Rounds: rounds,
	}
	for _, blk := range c.Blocks {
		live := blockOut[blk.ID]
		for i := len(blk.Events) - 1; i >= 0; i-- {
			id := c.PointID(Point{Block: blk.ID, Index: i})
			lv.Out[id] = live
			live = transfer(&blk.Events[i], live)
			lv.In[id] = live
		}
	}
	return lv
}
