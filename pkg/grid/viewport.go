package grid

import (
	"errors"
	"math"
	"sort"

	"github.com/surrealdb/surrealgrid/pkg/models"
)

// Range is a half-open row interval [Start, End).
type Range struct {
	Start int
	End   int
}

func (r Range) Len() int { return r.End - r.Start }

func (r Range) Contains(i int) bool { return i >= r.Start && i < r.End }

// ComputeVisibleRange is the fixed-row-height form of [Viewport.ComputeVisibleRange].
func ComputeVisibleRange(scrollOffset, viewportHeight, rowHeight float64, overscan, rowCount int) Range {
	if rowCount <= 0 || viewportHeight <= 0 || rowHeight <= 0 {
		return Range{}
	}
	scrollOffset = math.Max(0, scrollOffset)
	first := int(scrollOffset / rowHeight)
	last := int(math.Ceil((scrollOffset + viewportHeight) / rowHeight))
	return clampRange(first, last, overscan, rowCount)
}

func clampRange(first, end, overscan, rowCount int) Range {
	overscan = max(overscan, 0)
	start := max(0, min(first, rowCount-1)-overscan)
	end = min(rowCount, end+overscan)
	if end < start {
		end = start
	}
	return Range{Start: start, End: end}
}

// Viewport computes which rows of the flattened sequence to render for a scroll
// position. Rows are assumed to be EstimatedRowHeight tall until measured.
//
// Viewport is not safe for concurrent use; the Controller guards it.
type Viewport struct {
	EstimatedRowHeight float64
	Overscan           int
	Columns            *Columns

	measure func(index int) float64
	heights map[int]float64
}

func NewViewport(estimatedRowHeight float64, overscan int) *Viewport {
	if estimatedRowHeight <= 0 {
		estimatedRowHeight = 1
	}
	return &Viewport{
		EstimatedRowHeight: estimatedRowHeight,
		Overscan:           overscan,
		Columns:            NewColumns(nil, 0),
		heights:            map[int]float64{},
	}
}

// SetMeasurer installs the function MeasureRow uses for rows not measured yet.
func (v *Viewport) SetMeasurer(fn func(index int) float64) {
	v.measure = fn
}

// MeasureRow returns the row's actual height. The first measurement of a row is kept,
// so repeated calls return the same height until ResetMeasurements. Without a measurer
// unmeasured rows report the estimate.
func (v *Viewport) MeasureRow(index int) float64 {
	if h, ok := v.heights[index]; ok {
		return h
	}
	if v.measure == nil {
		return v.EstimatedRowHeight
	}
	h := v.measure(index)
	if h <= 0 {
		h = v.EstimatedRowHeight
	}
	v.heights[index] = h
	return h
}

// SetRowHeight records a measured height.
func (v *Viewport) SetRowHeight(index int, height float64) {
	if height <= 0 {
		delete(v.heights, index)
		return
	}
	v.heights[index] = height
}

// ResetMeasurements forgets every measured height, for when rows change identity.
func (v *Viewport) ResetMeasurements() {
	v.heights = map[int]float64{}
}

func (v *Viewport) heightOf(index int) float64 {
	if h, ok := v.heights[index]; ok {
		return h
	}
	return v.EstimatedRowHeight
}

// OffsetOf returns the distance from the top of the grid to the top of row index.
func (v *Viewport) OffsetOf(index int) float64 {
	offset := float64(index) * v.EstimatedRowHeight
	for i, h := range v.heights {
		if i < index {
			offset += h - v.EstimatedRowHeight
		}
	}
	return offset
}

// TotalHeight is the scrollable height of rowCount rows.
func (v *Viewport) TotalHeight(rowCount int) float64 {
	return v.OffsetOf(rowCount)
}

// indexAt returns the row containing y.
func (v *Viewport) indexAt(y float64, rowCount int) int {
	i := sort.Search(rowCount, func(i int) bool {
		return v.OffsetOf(i)+v.heightOf(i) > y
	})
	return min(i, rowCount-1)
}

// ComputeVisibleRange returns the rows intersecting [scrollOffset,
// scrollOffset+viewportHeight), widened by Overscan rows on both sides.
func (v *Viewport) ComputeVisibleRange(scrollOffset, viewportHeight float64, rowCount int) Range {
	if rowCount <= 0 || viewportHeight <= 0 {
		return Range{}
	}
	if len(v.heights) == 0 {
		return ComputeVisibleRange(scrollOffset, viewportHeight, v.EstimatedRowHeight, v.Overscan, rowCount)
	}
	scrollOffset = math.Max(0, scrollOffset)
	first := v.indexAt(scrollOffset, rowCount)
	last := v.indexAt(scrollOffset+viewportHeight, rowCount)
	return clampRange(first, last+1, v.Overscan, rowCount)
}

// ErrUnknownColumn is returned for a field that is not part of the layout.
var ErrUnknownColumn = errors.New("unknown column")

// Column is one field in the layout.
type Column struct {
	Field  *models.Field
	Width  int
	Hidden bool
}

// Columns is the presentation order, widths and visibility of a table's fields.
// Changing it never requires refetching records.
type Columns struct {
	cols []Column
}

// NewColumns lays out fields by their order, each width wide.
func NewColumns(fields []*models.Field, width int) *Columns {
	sorted := append([]*models.Field(nil), fields...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	cols := make([]Column, len(sorted))
	for i, f := range sorted {
		cols[i] = Column{Field: f, Width: width}
	}
	return &Columns{cols: cols}
}

// All returns every column in display order.
func (c *Columns) All() []Column {
	return append([]Column(nil), c.cols...)
}

// Visible returns the shown columns in display order.
func (c *Columns) Visible() []Column {
	out := make([]Column, 0, len(c.cols))
	for _, col := range c.cols {
		if !col.Hidden {
			out = append(out, col)
		}
	}
	return out
}

func (c *Columns) find(id models.FieldID) int {
	for i, col := range c.cols {
		if col.Field.ID == id {
			return i
		}
	}
	return -1
}

// Move places the column at position to, clamped to the layout.
func (c *Columns) Move(id models.FieldID, to int) error {
	from := c.find(id)
	if from < 0 {
		return ErrUnknownColumn
	}
	to = max(0, min(to, len(c.cols)-1))
	col := c.cols[from]
	c.cols = append(c.cols[:from], c.cols[from+1:]...)
	c.cols = append(c.cols[:to], append([]Column{col}, c.cols[to:]...)...)
	return nil
}

func (c *Columns) Resize(id models.FieldID, width int) error {
	i := c.find(id)
	if i < 0 {
		return ErrUnknownColumn
	}
	c.cols[i].Width = max(width, 1)
	return nil
}

func (c *Columns) SetHidden(id models.FieldID, hidden bool) error {
	i := c.find(id)
	if i < 0 {
		return ErrUnknownColumn
	}
	c.cols[i].Hidden = hidden
	return nil
}

// HideOnly hides exactly the listed fields and shows the rest. Unknown IDs are ignored.
func (c *Columns) HideOnly(ids []models.FieldID) {
	hidden := make(map[models.FieldID]bool, len(ids))
	for _, id := range ids {
		hidden[id] = true
	}
	for i := range c.cols {
		c.cols[i].Hidden = hidden[c.cols[i].Field.ID]
	}
}
