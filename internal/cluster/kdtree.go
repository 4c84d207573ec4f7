package cluster

import "sort"

// kdTree is a static 2-d tree over points in projected unit space. Nodes are
// implicit: the median of every range is the split, and ranges no larger
// than nodeSize are left unsorted and scanned linearly.
type kdTree struct {
	ids      []int
	xs       []float64
	ys       []float64
	nodeSize int
}

func newKDTree(ids []int, xs, ys []float64, nodeSize int) *kdTree {
	t := &kdTree{
		ids:      make([]int, len(ids)),
		xs:       make([]float64, len(ids)),
		ys:       make([]float64, len(ids)),
		nodeSize: nodeSize,
	}
	for i, id := range ids {
		t.ids[i] = id
		t.xs[i] = xs[i]
		t.ys[i] = ys[i]
	}
	t.build(0, len(ids)-1, 0)
	return t
}

func (t *kdTree) build(left, right, axis int) {
	if right-left <= t.nodeSize {
		return
	}
	sort.Sort(axisSorter{t: t, off: left, n: right - left + 1, axis: axis})
	m := (left + right) / 2
	t.build(left, m-1, 1-axis)
	t.build(m+1, right, 1-axis)
}

type axisSorter struct {
	t    *kdTree
	off  int
	n    int
	axis int
}

func (s axisSorter) Len() int { return s.n }

func (s axisSorter) Less(i, j int) bool {
	i, j = i+s.off, j+s.off
	if s.axis == 0 {
		return s.t.xs[i] < s.t.xs[j]
	}
	return s.t.ys[i] < s.t.ys[j]
}

func (s axisSorter) Swap(i, j int) {
	i, j = i+s.off, j+s.off
	s.t.ids[i], s.t.ids[j] = s.t.ids[j], s.t.ids[i]
	s.t.xs[i], s.t.xs[j] = s.t.xs[j], s.t.xs[i]
	s.t.ys[i], s.t.ys[j] = s.t.ys[j], s.t.ys[i]
}

type span struct {
	left, right, axis int
}

// rangeQuery returns the ids of all points inside the inclusive rectangle.
func (t *kdTree) rangeQuery(minX, minY, maxX, maxY float64) []int {
	var result []int
	stack := []span{{0, len(t.ids) - 1, 0}}

	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if s.right-s.left <= t.nodeSize {
			for i := s.left; i <= s.right; i++ {
				if t.xs[i] >= minX && t.xs[i] <= maxX && t.ys[i] >= minY && t.ys[i] <= maxY {
					result = append(result, t.ids[i])
				}
			}
			continue
		}

		m := (s.left + s.right) / 2
		x, y := t.xs[m], t.ys[m]
		if x >= minX && x <= maxX && y >= minY && y <= maxY {
			result = append(result, t.ids[m])
		}

		lo, hi := x, x
		qlo, qhi := minX, maxX
		if s.axis == 1 {
			lo, hi = y, y
			qlo, qhi = minY, maxY
		}
		if qlo <= lo {
			stack = append(stack, span{s.left, m - 1, 1 - s.axis})
		}
		if qhi >= hi {
			stack = append(stack, span{m + 1, s.right, 1 - s.axis})
		}
	}
	return result
}

// within returns the ids of all points at most r away from (qx, qy).
func (t *kdTree) within(qx, qy, r float64) []int {
	var result []int
	r2 := r * r
	stack := []span{{0, len(t.ids) - 1, 0}}

	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if s.right-s.left <= t.nodeSize {
			for i := s.left; i <= s.right; i++ {
				if sqDist(t.xs[i], t.ys[i], qx, qy) <= r2 {
					result = append(result, t.ids[i])
				}
			}
			continue
		}

		m := (s.left + s.right) / 2
		x, y := t.xs[m], t.ys[m]
		if sqDist(x, y, qx, qy) <= r2 {
			result = append(result, t.ids[m])
		}

		split, q := x, qx
		if s.axis == 1 {
			split, q = y, qy
		}
		if q-r <= split {
			stack = append(stack, span{s.left, m - 1, 1 - s.axis})
		}
		if q+r >= split {
			stack = append(stack, span{m + 1, s.right, 1 - s.axis})
		}
	}
	return result
}

func sqDist(ax, ay, bx, by float64) float64 {
	dx := ax - bx
	dy := ay - by
	return dx*dx + dy*dy
}
