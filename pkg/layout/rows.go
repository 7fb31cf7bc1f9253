package layout

import (
	"math"
	"sort"
)

// GroupRows clusters boxes into text lines.
//
// Boxes are visited top to bottom (then left to right) and each one joins the
// first existing row, in creation order, that either overlaps it vertically
// by at least th.RowIoU or whose reference midpoint lies within
// th.RowCenter row heights of the box midpoint. This is a greedy single pass,
// so the result depends on visiting order; rows are never split or merged.
//
// Rows come back sorted by YMid and members within a row by XMin.
func GroupRows(boxes []AxisBox, th Thresholds) []Row {
	if len(boxes) == 0 {
		return nil
	}

	order := make([]Member, len(boxes))
	for i, b := range boxes {
		order[i] = Member{Index: i, Box: b}
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].Box.YMin != order[j].Box.YMin {
			return order[i].Box.YMin < order[j].Box.YMin
		}
		return order[i].Box.XMin < order[j].Box.XMin
	})

	var rows []*Row
	for _, m := range order {
		placed := false
		for _, row := range rows {
			if row.accepts(m.Box, th) {
				row.add(m)
				placed = true
				break
			}
		}
		if !placed {
			rows = append(rows, newRow(m))
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].YMid < rows[j].YMid
	})

	result := make([]Row, len(rows))
	for i, row := range rows {
		sort.SliceStable(row.Members, func(a, b int) bool {
			return row.Members[a].Box.XMin < row.Members[b].Box.XMin
		})
		result[i] = *row
	}
	return result
}

func newRow(m Member) *Row {
	return &Row{
		Members: []Member{m},
		YMid:    m.Box.MidY(),
		HAvg:    math.Max(1, m.Box.Height()),
		YTop:    m.Box.YMin,
		YBottom: m.Box.YMax,
	}
}

// Extent returns the vertical band the row currently covers
func (r *Row) Extent() AxisBox {
	return AxisBox{YMin: r.YTop, YMax: r.YBottom}
}

func (r *Row) accepts(b AxisBox, th Thresholds) bool {
	if VerticalIoU(b, r.Extent()) >= th.RowIoU {
		return true
	}
	return math.Abs(b.MidY()-r.YMid) <= th.RowCenter*r.HAvg
}

func (r *Row) add(m Member) {
	r.Members = append(r.Members, m)

	tops := make([]float64, len(r.Members))
	bottoms := make([]float64, len(r.Members))
	heights := make([]float64, len(r.Members))
	for i, member := range r.Members {
		tops[i] = member.Box.YMin
		bottoms[i] = member.Box.YMax
		heights[i] = member.Box.Height()
	}

	r.YMid = (median(tops) + median(bottoms)) / 2.0
	r.HAvg = median(heights)
	r.YTop = minOf(tops)
	r.YBottom = maxOf(bottoms)
}

// median averages the two middle values for even-length input
func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2.0
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		m = math.Min(m, v)
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		m = math.Max(m, v)
	}
	return m
}
