package chm

import (
	"context"
	"fmt"
	"io/fs"
	"runtime"
	"slices"
	"time"

	"github.com/dhconnelly/rtreego"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// A TileEntry is a cell of the tile grid with its surface and terrain
// rasters. TileEntries are shared between callers and must not be modified.
type TileEntry struct {
	TileID      TileID
	SurfacePath string
	TerrainPath string
	Bounds      BoundingBox
	SRID        int
	Surface     RasterInfo
	Terrain     RasterInfo
	surfaceFS   fs.FS
	terrainFS   fs.FS
}

// Path returns the path of the raster selected by which, or "" if which is
// unknown.
func (e *TileEntry) Path(which Model) string {
	switch which {
	case Surface:
		return e.SurfacePath
	case Terrain:
		return e.TerrainPath
	default:
		return ""
	}
}

// Open opens the raster selected by which. The caller must close it.
func (e *TileEntry) Open(which Model) (*GeoTIFF, error) {
	switch which {
	case Surface:
		return OpenGeoTIFF(e.surfaceFS, e.SurfacePath)
	case Terrain:
		return OpenGeoTIFF(e.terrainFS, e.TerrainPath)
	default:
		return nil, fmt.Errorf("%s: unknown model", which)
	}
}

// A Catalog is an immutable set of TileEntries indexed by TileID and by
// extent. It is safe for concurrent use.
type Catalog struct {
	entries []*TileEntry
	byID    map[TileID]*TileEntry
	rtree   *rtreego.Rtree
}

// A CatalogOption sets an option on BuildCatalog.
type CatalogOption func(*catalogBuilder)

type catalogBuilder struct {
	concurrency       int
	tileIDFunc        TileIDFunc
	srid              int
	expectedTileCount int
	logger            zerolog.Logger
}

// A rasterFile is a raster found while scanning a collection.
type rasterFile struct {
	tileID TileID
	path   string
	info   *RasterInfo
}

// WithConcurrency sets the maximum number of headers read in parallel.
func WithConcurrency(concurrency int) CatalogOption {
	return func(b *catalogBuilder) {
		b.concurrency = concurrency
	}
}

// WithTileIDFunc sets the function that derives TileIDs from paths.
func WithTileIDFunc(tileIDFunc TileIDFunc) CatalogOption {
	return func(b *catalogBuilder) {
		b.tileIDFunc = tileIDFunc
	}
}

// WithSRID rejects rasters that declare a CRS other than srid.
func WithSRID(srid int) CatalogOption {
	return func(b *catalogBuilder) {
		b.srid = srid
	}
}

// WithExpectedTileCount rejects catalogs that do not have exactly
// expectedTileCount entries.
func WithExpectedTileCount(expectedTileCount int) CatalogOption {
	return func(b *catalogBuilder) {
		b.expectedTileCount = expectedTileCount
	}
}

func WithLogger(logger zerolog.Logger) CatalogOption {
	return func(b *catalogBuilder) {
		b.logger = logger
	}
}

// BuildCatalog scans the GeoTIFF files in surfaceFS and terrainFS and joins
// them on TileID. Every file is closed as soon as its header is read. Any
// naming error, unreadable header, or disagreement between the two
// collections aborts the build.
func BuildCatalog(ctx context.Context, surfaceFS, terrainFS fs.FS, options ...CatalogOption) (*Catalog, error) {
	b := &catalogBuilder{
		concurrency: runtime.GOMAXPROCS(0),
		tileIDFunc:  MarkerTileIDFunc("_k", 2),
		logger:      zerolog.Nop(),
	}
	for _, option := range options {
		option(b)
	}
	start := time.Now()

	surfaceFiles, err := b.scan(surfaceFS)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", Surface, err)
	}
	terrainFiles, err := b.scan(terrainFS)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", Terrain, err)
	}
	tileIDs, err := joinTileIDs(surfaceFiles, terrainFiles)
	if err != nil {
		return nil, err
	}

	if err := b.readInfos(ctx, surfaceFS, Surface, surfaceFiles); err != nil {
		return nil, err
	}
	if err := b.readInfos(ctx, terrainFS, Terrain, terrainFiles); err != nil {
		return nil, err
	}

	entries := make([]*TileEntry, 0, len(tileIDs))
	for _, tileID := range tileIDs {
		entry, err := b.newTileEntry(surfaceFiles[tileID], terrainFiles[tileID], surfaceFS, terrainFS)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if b.expectedTileCount != 0 && len(entries) != b.expectedTileCount {
		return nil, &CatalogInconsistencyError{
			Reason: fmt.Sprintf("found %d tiles, expected %d", len(entries), b.expectedTileCount),
		}
	}

	c, err := newCatalog(entries)
	if err != nil {
		return nil, err
	}

	b.logger.Info().
		Int("tiles", len(entries)).
		Dur("duration", time.Since(start)).
		Msg("built tile catalog")
	return c, nil
}

// scan returns the raster files in fsys keyed by TileID.
func (b *catalogBuilder) scan(fsys fs.FS) (map[TileID]*rasterFile, error) {
	rasterFiles := make(map[TileID]*rasterFile)
	err := fs.WalkDir(fsys, ".", func(path string, dirEntry fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case dirEntry.IsDir():
			return nil
		case !isRasterFilename(path):
			return nil
		}
		tileID, err := b.tileIDFunc(path)
		if err != nil {
			return err
		}
		if existing, ok := rasterFiles[tileID]; ok {
			return &CatalogInconsistencyError{
				TileID: tileID,
				Reason: fmt.Sprintf("duplicate rasters %s and %s", existing.path, path),
			}
		}
		rasterFiles[tileID] = &rasterFile{
			tileID: tileID,
			path:   path,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rasterFiles, nil
}

// joinTileIDs returns the sorted TileIDs present in both collections. A
// TileID present in only one collection is an error.
func joinTileIDs(surfaceFiles, terrainFiles map[TileID]*rasterFile) ([]TileID, error) {
	tileIDs := make([]TileID, 0, len(surfaceFiles))
	for tileID := range surfaceFiles {
		tileIDs = append(tileIDs, tileID)
	}
	for tileID := range terrainFiles {
		if _, ok := surfaceFiles[tileID]; !ok {
			tileIDs = append(tileIDs, tileID)
		}
	}
	slices.Sort(tileIDs)
	for _, tileID := range tileIDs {
		if _, ok := surfaceFiles[tileID]; !ok {
			return nil, &CatalogInconsistencyError{
				TileID: tileID,
				Reason: fmt.Sprintf("%s raster %s has no %s counterpart", Terrain, terrainFiles[tileID].path, Surface),
			}
		}
		if _, ok := terrainFiles[tileID]; !ok {
			return nil, &CatalogInconsistencyError{
				TileID: tileID,
				Reason: fmt.Sprintf("%s raster %s has no %s counterpart", Surface, surfaceFiles[tileID].path, Terrain),
			}
		}
	}
	return tileIDs, nil
}

// readInfos reads the header of every raster file in parallel. Results are
// only stored once all reads have succeeded.
func (b *catalogBuilder) readInfos(ctx context.Context, fsys fs.FS, model Model, rasterFiles map[TileID]*rasterFile) error {
	files := make([]*rasterFile, 0, len(rasterFiles))
	for _, file := range rasterFiles {
		files = append(files, file)
	}
	infos := make([]*RasterInfo, len(files))

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(max(b.concurrency, 1))
	for i, file := range files {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			info, err := ReadRasterInfo(fsys, file.path)
			if err != nil {
				return fmt.Errorf("tile %s %s: %w", file.tileID, model, err)
			}
			catalogHeaderReads.Inc()
			b.logger.Debug().
				Str("tile", string(file.tileID)).
				Stringer("model", model).
				Str("path", file.path).
				Msg("read raster header")
			infos[i] = info
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	for i, file := range files {
		file.info = infos[i]
	}
	return nil
}

// newTileEntry joins the surface and terrain rasters of a tile.
func (b *catalogBuilder) newTileEntry(surface, terrain *rasterFile, surfaceFS, terrainFS fs.FS) (*TileEntry, error) {
	tileID := surface.tileID
	if surface.info.Bounds != terrain.info.Bounds {
		return nil, &CatalogInconsistencyError{
			TileID: tileID,
			Reason: fmt.Sprintf("%s bounds %v differ from %s bounds %v", Surface, surface.info.Bounds, Terrain, terrain.info.Bounds),
		}
	}
	if surface.info.SRID != terrain.info.SRID {
		return nil, &CatalogInconsistencyError{
			TileID: tileID,
			Reason: fmt.Sprintf("%s EPSG:%d differs from %s EPSG:%d", Surface, surface.info.SRID, Terrain, terrain.info.SRID),
		}
	}
	if b.srid != 0 && surface.info.SRID != 0 && surface.info.SRID != b.srid {
		return nil, &CatalogInconsistencyError{
			TileID: tileID,
			Reason: fmt.Sprintf("EPSG:%d, expected EPSG:%d", surface.info.SRID, b.srid),
		}
	}
	return &TileEntry{
		TileID:      tileID,
		SurfacePath: surface.path,
		TerrainPath: terrain.path,
		Bounds:      surface.info.Bounds,
		SRID:        surface.info.SRID,
		Surface:     *surface.info,
		Terrain:     *terrain.info,
		surfaceFS:   surfaceFS,
		terrainFS:   terrainFS,
	}, nil
}

// An indexedEntry is a TileEntry in a Catalog's rtree.
type indexedEntry struct {
	index int
	rect  rtreego.Rect
}

func (e *indexedEntry) Bounds() rtreego.Rect {
	return e.rect
}

// newCatalog returns a new Catalog from entries, which must be sorted by
// TileID. Entries whose extents overlap with a positive area are rejected.
func newCatalog(entries []*TileEntry) (*Catalog, error) {
	byID := make(map[TileID]*TileEntry, len(entries))
	spatials := make([]rtreego.Spatial, 0, len(entries))
	for i, entry := range entries {
		byID[entry.TileID] = entry
		rect, err := boundingBoxRect(entry.Bounds)
		if err != nil {
			return nil, &CatalogInconsistencyError{
				TileID: entry.TileID,
				Reason: fmt.Sprintf("invalid bounds %v", entry.Bounds),
			}
		}
		spatials = append(spatials, &indexedEntry{
			index: i,
			rect:  rect,
		})
	}

	c := &Catalog{
		entries: entries,
		byID:    byID,
	}
	if len(spatials) > 0 {
		c.rtree = rtreego.NewTree(2, 4, 16, spatials...)
	}

	for _, spatial := range spatials {
		i := spatial.(*indexedEntry).index
		for _, other := range c.rtree.SearchIntersect(spatial.Bounds()) {
			j := other.(*indexedEntry).index
			if j <= i {
				continue
			}
			if overlapsWithArea(entries[i].Bounds, entries[j].Bounds) {
				return nil, &CatalogInconsistencyError{
					TileID: entries[i].TileID,
					Reason: fmt.Sprintf("bounds overlap tile %s", entries[j].TileID),
				}
			}
		}
	}

	return c, nil
}

// Len returns the number of entries in c.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Entries returns c's entries ordered by TileID. This is the order in which
// Resolve breaks ties.
func (c *Catalog) Entries() []*TileEntry {
	return slices.Clone(c.entries)
}

// Entry returns the entry with the given TileID.
func (c *Catalog) Entry(tileID TileID) (*TileEntry, bool) {
	entry, ok := c.byID[tileID]
	return entry, ok
}

// Bounds returns the union of the extents of c's entries.
func (c *Catalog) Bounds() BoundingBox {
	if len(c.entries) == 0 {
		return BoundingBox{}
	}
	bounds := c.entries[0].Bounds
	for _, entry := range c.entries[1:] {
		bounds = bounds.Union(entry.Bounds)
	}
	return bounds
}

func boundingBoxRect(bounds BoundingBox) (rtreego.Rect, error) {
	return rtreego.NewRect(
		rtreego.Point{bounds.Min[0], bounds.Min[1]},
		[]float64{bounds.Max[0] - bounds.Min[0], bounds.Max[1] - bounds.Min[1]},
	)
}

// overlapsWithArea returns whether a and b share more than an edge or a
// corner.
func overlapsWithArea(a, b BoundingBox) bool {
	return min(a.Max[0], b.Max[0]) > max(a.Min[0], b.Min[0]) &&
		min(a.Max[1], b.Max[1]) > max(a.Min[1], b.Min[1])
}
