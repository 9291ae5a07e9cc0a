package render

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/srec-tools/pipectl/internal/layout"
)

// RenderASCII renders the model as a character canvas. Layout positions are
// scaled onto a grid sized from the largest box, one box per node, with
// dependency edges drawn as right-angle connectors. Output is a pure
// function of the model.
func RenderASCII(model *Model) string {
	boxes := make([]asciiBox, len(model.Nodes))
	maxW, maxH := 1, 1
	for i, n := range model.Nodes {
		boxes[i] = makeBox(n)
		if boxes[i].width > maxW {
			maxW = boxes[i].width
		}
		if len(boxes[i].lines) > maxH {
			maxH = len(boxes[i].lines)
		}
	}

	// One layout level spans the widest box plus a connector lane; one
	// node-spacing step spans the tallest box plus a blank row.
	colSpan := float64(maxW + 6)
	rowSpan := float64(maxH + 1)

	rects := make(map[string]rect, len(model.Nodes))
	for i, n := range model.Nodes {
		x := int(math.Round(n.Pos.X / layout.LevelSpacing * colSpan))
		y := int(math.Round(n.Pos.Y / layout.NodeSpacing * rowSpan))
		if x < 0 {
			x = 0
		}
		if y < 0 {
			y = 0
		}
		rects[n.ID] = rect{
			x1: x,
			y1: y,
			x2: x + boxes[i].width - 1,
			y2: y + len(boxes[i].lines) - 1,
		}
	}

	// Edges first so the boxes overpaint the connector stubs.
	c := &canvas{}
	for _, e := range model.Edges {
		from, okFrom := rects[e.From]
		to, okTo := rects[e.To]
		if okFrom && okTo {
			routeEdge(c, from, to)
		}
	}
	for i, n := range model.Nodes {
		r := rects[n.ID]
		for row, line := range boxes[i].lines {
			c.text(r.x1, r.y1+row, line)
		}
	}

	var b strings.Builder
	if model.Title != "" {
		b.WriteString(fmt.Sprintf("=== %s ===\n\n", model.Title))
	}
	b.WriteString(c.String())

	hasBadge := false
	for _, n := range model.Nodes {
		if n.Root || n.Leaf {
			hasBadge = true
			break
		}
	}
	if hasBadge {
		b.WriteString("\n# = root, * = leaf\n")
	}
	return b.String()
}

// asciiBox holds the rendered lines of a single box.
type asciiBox struct {
	lines []string
	width int
}

// makeBox builds the bordered box for a node: the badged display name,
// plus the id on its own line when it differs.
func makeBox(n *Node) asciiBox {
	content := []string{badgedLabel(n)}
	if n.ID != n.Label {
		content = append(content, n.ID)
	}

	maxLen := 0
	for _, line := range content {
		if l := utf8.RuneCountInString(line); l > maxLen {
			maxLen = l
		}
	}
	width := maxLen + 4 // 2 border + 2 padding

	lines := make([]string, 0, len(content)+2)
	lines = append(lines, "┌"+strings.Repeat("─", width-2)+"┐")
	for _, line := range content {
		pad := strings.Repeat(" ", maxLen-utf8.RuneCountInString(line))
		lines = append(lines, "│ "+line+pad+" │")
	}
	lines = append(lines, "└"+strings.Repeat("─", width-2)+"┘")

	return asciiBox{lines: lines, width: width}
}

func badgedLabel(n *Node) string {
	label := n.Label
	if n.Root {
		label = "# " + label
	}
	if n.Leaf {
		label = label + " *"
	}
	return label
}

type rect struct {
	x1, y1, x2, y2 int
}

func (r rect) midX() int { return (r.x1 + r.x2) / 2 }
func (r rect) midY() int { return (r.y1 + r.y2) / 2 }

// routeEdge draws a right-angle connector between two boxes. A laid-out
// graph flows left to right; the vertical and mirrored routes cover
// hand-moved arrangements. Boxes overlapping on both axes get no stroke.
func routeEdge(c *canvas, from, to rect) {
	switch {
	case from.x2+2 <= to.x1:
		routeAcross(c, from.x2+1, from.midY(), to.x1-1, to.midY(), '→')
	case to.x2+2 <= from.x1:
		routeAcross(c, from.x1-1, from.midY(), to.x2+1, to.midY(), '←')
	case from.y2 < to.y1:
		routeVertical(c, from.midX(), from.y2+1, to.midX(), to.y1-1, '▼')
	case to.y2 < from.y1:
		routeVertical(c, from.midX(), from.y1-1, to.midX(), to.y2+1, '▲')
	}
}

// routeAcross runs horizontally from the source edge, jogs vertically just
// before the target column, and ends in an arrow head at the target edge.
func routeAcross(c *canvas, sx, sy, ex, ey int, arrow rune) {
	step := 1
	if ex < sx {
		step = -1
	}

	if sy == ey {
		hline(c, sx, ex, sy)
		c.set(ex, ey, arrow)
		return
	}

	bend := ex - 2*step
	if (bend-sx)*step < 0 {
		bend = sx
	}

	hline(c, sx, bend, sy)
	vline(c, sy, ey, bend)
	hline(c, bend, ex, ey)
	c.set(bend, sy, cornerGlyph(step > 0, ey > sy, true))
	c.set(bend, ey, cornerGlyph(step > 0, ey > sy, false))
	c.set(ex, ey, arrow)
}

// routeVertical runs vertically from the source edge, jogs horizontally at
// the midpoint row, and ends in an arrow head at the target edge.
func routeVertical(c *canvas, sx, sy, ex, ey int, arrow rune) {
	if sx == ex {
		vline(c, sy, ey, sx)
		c.set(ex, ey, arrow)
		return
	}

	mid := (sy + ey) / 2
	vline(c, sy, mid, sx)
	hline(c, sx, ex, mid)
	vline(c, mid, ey, ex)
	// A vertical-first bend is the mirror of a horizontal-first one.
	c.set(sx, mid, cornerGlyph(ex > sx, ey > sy, false))
	c.set(ex, mid, cornerGlyph(ex > sx, ey > sy, true))
	c.set(ex, ey, arrow)
}

// cornerGlyph picks the box-drawing corner for a horizontal-first turn:
// rightward/downward describe the travel direction, start selects the
// turn-off corner versus the turn-in corner.
func cornerGlyph(rightward, downward, start bool) rune {
	switch {
	case rightward && downward:
		if start {
			return '┐'
		}
		return '└'
	case rightward && !downward:
		if start {
			return '┘'
		}
		return '┌'
	case !rightward && downward:
		if start {
			return '┌'
		}
		return '┘'
	default:
		if start {
			return '└'
		}
		return '┐'
	}
}

func hline(c *canvas, xa, xb, y int) {
	if xa > xb {
		xa, xb = xb, xa
	}
	for x := xa; x <= xb; x++ {
		c.stroke(x, y, '─')
	}
}

func vline(c *canvas, ya, yb, x int) {
	if ya > yb {
		ya, yb = yb, ya
	}
	for y := ya; y <= yb; y++ {
		c.stroke(x, y, '│')
	}
}

// canvas is a growable rune grid.
type canvas struct {
	rows [][]rune
}

func (c *canvas) set(x, y int, r rune) {
	if x < 0 || y < 0 {
		return
	}
	for len(c.rows) <= y {
		c.rows = append(c.rows, nil)
	}
	for len(c.rows[y]) <= x {
		c.rows[y] = append(c.rows[y], ' ')
	}
	c.rows[y][x] = r
}

// stroke paints an edge segment, merging perpendicular strokes into a
// crossing glyph.
func (c *canvas) stroke(x, y int, r rune) {
	cur := c.at(x, y)
	if (r == '─' && cur == '│') || (r == '│' && cur == '─') {
		r = '┼'
	}
	c.set(x, y, r)
}

func (c *canvas) at(x, y int) rune {
	if y < 0 || y >= len(c.rows) || x < 0 || x >= len(c.rows[y]) {
		return ' '
	}
	return c.rows[y][x]
}

func (c *canvas) text(x, y int, s string) {
	i := 0
	for _, r := range s {
		c.set(x+i, y, r)
		i++
	}
}

func (c *canvas) String() string {
	var b strings.Builder
	for _, row := range c.rows {
		b.WriteString(strings.TrimRight(string(row), " "))
		b.WriteByte('\n')
	}
	return b.String()
}
