package chm

import (
	"path"
	"strconv"
	"strings"
)

// A TileID identifies a cell of the tile grid.
type TileID string

// A TileIDFunc derives a TileID from a raster's path.
type TileIDFunc func(name string) (TileID, error)

// MarkerTileIDFunc returns a TileIDFunc for filenames whose stem contains
// marker followed by a grid cell code of exactly digits decimal digits, for
// example DHMVIIDSMRAS1m_k07.tif with marker "_k" and two digits. If the
// marker occurs more than once, the last occurrence is used.
func MarkerTileIDFunc(marker string, digits int) TileIDFunc {
	return func(name string) (TileID, error) {
		base := path.Base(name)
		stem := strings.TrimSuffix(base, path.Ext(base))
		index := strings.LastIndex(stem, marker)
		if index < 0 {
			return "", &TileNamingError{
				Path:   name,
				Reason: "missing marker " + marker,
			}
		}
		code := stem[index+len(marker):]
		if len(code) != digits {
			return "", &TileNamingError{
				Path:   name,
				Reason: "grid cell code " + code + " is not " + plural(digits, "digit"),
			}
		}
		for _, r := range code {
			if r < '0' || '9' < r {
				return "", &TileNamingError{
					Path:   name,
					Reason: "grid cell code " + code + " is not numeric",
				}
			}
		}
		return TileID(code), nil
	}
}

// isRasterFilename returns whether name has a GeoTIFF extension.
func isRasterFilename(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".tif", ".tiff":
		return true
	default:
		return false
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}
