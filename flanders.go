package chm

import (
	"context"
	"io/fs"
	"slices"
)

const (
	// Lambert72SRID is the EPSG code of Belge 1972 / Belgian Lambert 72.
	Lambert72SRID = 31370

	// FlandersTileCount is the number of map sheets (kaartbladen) of the NGI
	// 1:1 grid that cover Flanders. Each sheet is 32km × 20km.
	FlandersTileCount = 43
)

// BuildFlandersCatalog builds a catalog of the Digitaal Hoogtemodel
// Vlaanderen II rasters, for example DHMVIIDSMRAS1m_k07.tif in dsmFS and
// DHMVIIDTMRAS1m_k07.tif in dtmFS.
func BuildFlandersCatalog(ctx context.Context, dsmFS, dtmFS fs.FS, options ...CatalogOption) (*Catalog, error) {
	return BuildCatalog(ctx, dsmFS, dtmFS, slices.Concat(
		[]CatalogOption{
			WithTileIDFunc(MarkerTileIDFunc("_k", 2)),
			WithSRID(Lambert72SRID),
			WithExpectedTileCount(FlandersTileCount),
		},
		options,
	)...)
}
