package chm

import (
	"errors"
	"fmt"
)

var errParse = errors.New("parse error")

type GeoKey uint16

const (
	GeoKeyGTModelType  GeoKey = 1024
	GeoKeyGTRasterType GeoKey = 1025
	GeoKeyGTCitation   GeoKey = 1026

	GeoKeyGeodeticCRS   GeoKey = 2048
	GeoKeyGeogCitation  GeoKey = 2049
	GeoKeyGeodeticDatum GeoKey = 2050
	GeoKeyAngularUnits  GeoKey = 2054
	GeoKeyEllipsoid     GeoKey = 2056

	GeoKeyProjectedCRS GeoKey = 3072
	GeoKeyPCSCitation  GeoKey = 3073
	GeoKeyProjection   GeoKey = 3074
	GeoKeyProjMethod   GeoKey = 3075
	GeoKeyLinearUnits  GeoKey = 3076

	GeoKeyVertical      GeoKey = 4096
	GeoKeyVerticalUnits GeoKey = 4099
)

// Values of GeoKeyGTModelType.
const (
	ModelTypeProjected  = 1
	ModelTypeGeographic = 2
)

// userDefined is the GeoKey value for a CRS that is not an EPSG code.
const userDefined = 32767

// TIFF tags that hold GeoKey values that do not fit in the directory itself.
const (
	tagGeoDoubleParams = 34736
	tagGeoASCIIParams  = 34737
)

type ParsedGeoKeys struct {
	Params       map[GeoKey]int
	DoubleParams map[GeoKey]float64
	ASCIIParams  map[GeoKey]string
}

// ParseGeoKeys parses a GeoKeyDirectoryTag and its associated parameter
// tags.
func ParseGeoKeys(directory []uint16, doubleParams []float64, asciiParams []byte) (*ParsedGeoKeys, error) {
	if len(directory) < 4 {
		return nil, fmt.Errorf("geokey directory: %w: header too short", errParse)
	}

	if keyDirectoryVersion := int(directory[0]); keyDirectoryVersion != 1 {
		return nil, fmt.Errorf("geokey directory: %w: version %d", errParse, keyDirectoryVersion)
	}
	if keyRevision := int(directory[1]); keyRevision != 1 {
		return nil, fmt.Errorf("geokey directory: %w: revision %d", errParse, keyRevision)
	}
	if minorRevision := int(directory[2]); minorRevision != 0 && minorRevision != 1 {
		return nil, fmt.Errorf("geokey directory: %w: minor revision %d", errParse, minorRevision)
	}
	numberOfKeys := int(directory[3])
	if len(directory) != 4+4*numberOfKeys {
		return nil, fmt.Errorf("geokey directory: %w: %d keys in %d values", errParse, numberOfKeys, len(directory))
	}

	parsedGeoKeys := &ParsedGeoKeys{
		Params:       make(map[GeoKey]int),
		DoubleParams: make(map[GeoKey]float64),
		ASCIIParams:  make(map[GeoKey]string),
	}
	for i := range numberOfKeys {
		keyValues := directory[4+4*i : 4+4*(i+1)]
		key := GeoKey(keyValues[0])
		location := int(keyValues[1])
		count := int(keyValues[2])
		valueOffset := int(keyValues[3])
		switch location {
		case 0:
			if count != 1 {
				return nil, fmt.Errorf("geokey %d: %w: %d inline values", key, errParse, count)
			}
			parsedGeoKeys.Params[key] = valueOffset
		case tagGeoDoubleParams:
			if count != 1 {
				return nil, fmt.Errorf("geokey %d: %w", key, errors.ErrUnsupported)
			}
			if valueOffset >= len(doubleParams) {
				return nil, fmt.Errorf("geokey %d: %w: double param %d out of range", key, errParse, valueOffset)
			}
			parsedGeoKeys.DoubleParams[key] = doubleParams[valueOffset]
		case tagGeoASCIIParams:
			if valueOffset+count > len(asciiParams) {
				return nil, fmt.Errorf("geokey %d: %w: ascii param out of range", key, errParse)
			}
			parsedGeoKeys.ASCIIParams[key] = string(asciiParams[valueOffset : valueOffset+count])
		default:
			return nil, fmt.Errorf("geokey %d: %w: location %d", key, errors.ErrUnsupported, location)
		}
	}
	return parsedGeoKeys, nil
}

// EPSG returns the EPSG code of the CRS declared by k, or zero if k does not
// declare one.
func (k *ParsedGeoKeys) EPSG() int {
	switch k.Params[GeoKeyGTModelType] {
	case ModelTypeProjected:
		if code := k.Params[GeoKeyProjectedCRS]; code != userDefined {
			return code
		}
	case ModelTypeGeographic:
		if code := k.Params[GeoKeyGeodeticCRS]; code != userDefined {
			return code
		}
	}
	return 0
}
