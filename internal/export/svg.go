package export

import (
	"fmt"
	"html"
	"math"
	"strings"

	"bauplan/api/internal/geo"
	"bauplan/api/internal/plan"
)

const (
	svgPageWidth = 1000.0
	svgMargin    = 40.0
)

// RenderStoreySVG draws the walls, rooms and doors of one storey as an SVG
// document. Coordinates are in millimetres; the drawing is scaled to fit
// the page width and flipped so north is up.
func RenderStoreySVG(storey plan.Storey, walls []plan.Wall, rooms []plan.Room, doors []plan.Door) string {
	storeyWalls := make([]plan.Wall, 0, len(walls))
	for _, w := range walls {
		if w.StoreyID == storey.ID {
			storeyWalls = append(storeyWalls, w)
		}
	}
	storeyRooms := make([]plan.Room, 0, len(rooms))
	for _, r := range rooms {
		if r.StoreyID == storey.ID {
			storeyRooms = append(storeyRooms, r)
		}
	}

	minX, minY, maxX, maxY := planBounds(storeyWalls, storeyRooms)
	width := maxX - minX
	height := maxY - minY
	if width <= 0 {
		width = 1
	}
	if height <= 0 {
		height = 1
	}

	scale := (svgPageWidth - 2*svgMargin) / width
	pageHeight := height*scale + 2*svgMargin

	tx := func(p geo.Point) (float64, float64) {
		return (p.X-minX)*scale + svgMargin, (maxY-p.Y)*scale + svgMargin
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f">`,
		svgPageWidth, pageHeight, svgPageWidth, pageHeight)
	b.WriteString("\n")

	// Rooms first so walls draw on top of the fills.
	for _, room := range storeyRooms {
		if len(room.Polygon) < 3 {
			continue
		}
		points := make([]string, 0, len(room.Polygon))
		for _, v := range room.Polygon {
			x, y := tx(v)
			points = append(points, fmt.Sprintf("%.1f,%.1f", x, y))
		}
		fmt.Fprintf(&b, `<polygon points="%s" fill="#eef3f7" stroke="none"/>`, strings.Join(points, " "))
		b.WriteString("\n")

		anchor := room.LabelAnchor
		if anchor == nil {
			c := polygonCentroid(room.Polygon)
			anchor = &c
		}
		x, y := tx(*anchor)
		fmt.Fprintf(&b, `<text x="%.1f" y="%.1f" font-size="12" text-anchor="middle" fill="#6b7a88">%s</text>`,
			x, y, html.EscapeString(room.FloorType))
		b.WriteString("\n")
	}

	for _, wall := range storeyWalls {
		a, b1 := tx(wall.Start)
		c, d := tx(wall.End)
		stroke := "#2e3338"
		if wall.Type == plan.WallPartition {
			stroke = "#7a8288"
		}
		fmt.Fprintf(&b, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s" stroke-width="%.1f" stroke-linecap="square"/>`,
			a, b1, c, d, stroke, math.Max(wall.Thickness*scale, 1))
		b.WriteString("\n")
	}

	// Doors cut a white gap into their wall, door width wide.
	wallByID := make(map[string]plan.Wall, len(storeyWalls))
	for _, w := range storeyWalls {
		wallByID[w.ID] = w
	}
	for _, door := range doors {
		wall, ok := wallByID[door.WallID]
		if !ok {
			continue
		}
		seg := wall.Segment()
		length := geo.Dist(seg.A, seg.B)
		if length <= 0 {
			continue
		}
		half := door.Width / 2 / length
		from := geo.Lerp(seg, clamp01(door.Position-half))
		to := geo.Lerp(seg, clamp01(door.Position+half))
		x1, y1 := tx(from)
		x2, y2 := tx(to)
		fmt.Fprintf(&b, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#ffffff" stroke-width="%.1f"/>`,
			x1, y1, x2, y2, math.Max(wall.Thickness*scale, 1))
		b.WriteString("\n")
	}

	b.WriteString("</svg>\n")
	return b.String()
}

func planBounds(walls []plan.Wall, rooms []plan.Room) (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)

	include := func(p geo.Point) {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	for _, w := range walls {
		include(w.Start)
		include(w.End)
	}
	for _, r := range rooms {
		for _, v := range r.Polygon {
			include(v)
		}
	}
	if math.IsInf(minX, 1) {
		return 0, 0, 1, 1
	}
	return minX, minY, maxX, maxY
}

func polygonCentroid(polygon []geo.Point) geo.Point {
	var c geo.Point
	if len(polygon) == 0 {
		return c
	}
	for _, v := range polygon {
		c.X += v.X
		c.Y += v.Y
	}
	c.X /= float64(len(polygon))
	c.Y /= float64(len(polygon))
	return c
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
