package chm

import (
	"slices"

	"github.com/dhconnelly/rtreego"
)

// searchTolerance pads the query rectangle passed to the rtree. Candidates
// are then filtered with an exact containment test.
const searchTolerance = 1e-6

// Resolve returns the entry whose bounds contain point. Bounds are inclusive,
// so a point on an edge shared by two tiles matches both; the first match in
// TileID order wins. If no entry contains point, Resolve returns a
// *PointOutOfCoverageError.
func (c *Catalog) Resolve(point Point) (*TileEntry, error) {
	entries := c.ResolveAll(point)
	if len(entries) == 0 {
		resolveMisses.Inc()
		return nil, &PointOutOfCoverageError{Point: point}
	}
	resolveHits.Inc()
	return entries[0], nil
}

// ResolveAll returns all entries whose bounds contain point, ordered by
// TileID.
func (c *Catalog) ResolveAll(point Point) []*TileEntry {
	if c.rtree == nil {
		return nil
	}
	candidates := c.rtree.SearchIntersect(rtreego.Point{point[0], point[1]}.ToRect(searchTolerance))
	indexes := make([]int, 0, len(candidates))
	for _, candidate := range candidates {
		index := candidate.(*indexedEntry).index
		if c.entries[index].Bounds.Contains(point) {
			indexes = append(indexes, index)
		}
	}
	slices.Sort(indexes)
	entries := make([]*TileEntry, 0, len(indexes))
	for _, index := range indexes {
		entries = append(entries, c.entries[index])
	}
	return entries
}
