// Package grid places combat participants on a square battle map of 5 ft
// cells. Distances use the Chebyshev metric, so a diagonal step costs the
// same as an orthogonal one.
package grid

import (
	"fmt"
	"sync"

	skerr "github.com/cory-johannsen/skirmish/internal/errors"
)

// CellFeet is the edge length of one cell.
const CellFeet = 5

// Point is a cell coordinate.
type Point struct {
	X int `yaml:"x" json:"x"`
	Y int `yaml:"y" json:"y"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// Cells returns the Chebyshev distance between p and q in cells.
func (p Point) Cells(q Point) int {
	return max(abs(p.X-q.X), abs(p.Y-q.Y))
}

// Grid tracks positions, blocked cells and difficult terrain.
//
// Grid is safe for concurrent use.
type Grid struct {
	mu        sync.RWMutex
	pos       map[string]Point
	blocked   map[Point]bool
	difficult map[Point]bool
}

// New returns an empty Grid.
func New() *Grid {
	return &Grid{
		pos:       make(map[string]Point),
		blocked:   make(map[Point]bool),
		difficult: make(map[Point]bool),
	}
}

// Place puts id at p, replacing any previous position.
func (g *Grid) Place(id string, p Point) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pos[id] = p
}

// Remove forgets id.
func (g *Grid) Remove(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.pos, id)
}

// Position returns where id stands.
func (g *Grid) Position(id string) (Point, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.pos[id]
	return p, ok
}

// Block marks cells as impassable.
func (g *Grid) Block(cells ...Point) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range cells {
		g.blocked[c] = true
	}
}

// Difficult marks cells as difficult terrain, which costs double to enter.
func (g *Grid) Difficult(cells ...Point) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range cells {
		g.difficult[c] = true
	}
}

// Distance returns the distance in feet between two placed entities.
func (g *Grid) Distance(a, b string) (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.pos[a]
	if !ok {
		return 0, skerr.NotFoundf("%q is not on the grid", a)
	}
	q, ok := g.pos[b]
	if !ok {
		return 0, skerr.NotFoundf("%q is not on the grid", b)
	}
	return p.Cells(q) * CellFeet, nil
}

// MovementCost returns the cost in feet of moving from one cell to another
// in a straight line. Entering difficult terrain doubles the cost. The move
// is refused when the destination is blocked or, for creatures larger than
// tiny, already occupied.
func (g *Grid) MovementCost(from, to Point, size string) (int, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.blocked[to] {
		return 0, false
	}
	if size != "tiny" && from != to {
		for _, p := range g.pos {
			if p == to {
				return 0, false
			}
		}
	}
	cost := from.Cells(to) * CellFeet
	if g.difficult[to] {
		cost *= 2
	}
	return cost, true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
