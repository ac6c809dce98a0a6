package chm

import (
	"bytes"
	"compress/lzw"
	"compress/zlib"
	"encoding/binary"
	"math"
	"slices"
	"strconv"
	"testing"
	"testing/fstest"

	"github.com/alecthomas/assert/v2"
)

// TIFF field types.
const (
	typeASCII  = 2
	typeShort  = 3
	typeLong   = 4
	typeDouble = 12
)

// A testGeoTIFF describes a single-band GeoTIFF to encode.
type testGeoTIFF struct {
	width         int
	height        int
	originX       float64
	originY       float64
	pixelWidth    float64
	pixelHeight   float64
	samples       []float64 // Row-major, width*height.
	sampleFormat  uint16    // Defaults to IEEE floating point.
	bitsPerSample uint16    // Defaults to 32.
	noData        string
	srid          int
	pixelIsPoint  bool
	tileSize      int // Zero for a stripped layout.
	rowsPerStrip  int
	compression   uint16
	predictor     uint16
	bigEndian     bool
	byteCount     uint32 // Overrides every chunk byte count if non-zero.
}

// A testByteOrder can both read and append integers.
type testByteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

type testIFDEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

// encode returns tg as a GeoTIFF file.
func (tg testGeoTIFF) encode(t testing.TB) []byte {
	t.Helper()
	setDefault(&tg.sampleFormat, sampleFormatIEEEFP)
	setDefault(&tg.bitsPerSample, 32)
	setDefault(&tg.compression, compressionNone)
	setDefault(&tg.predictor, predictorNone)
	setDefault(&tg.pixelWidth, 1)
	setDefault(&tg.pixelHeight, tg.pixelWidth)
	if tg.samples == nil {
		tg.samples = make([]float64, tg.width*tg.height)
	}
	assert.Equal(t, tg.width*tg.height, len(tg.samples))

	var order testByteOrder = binary.LittleEndian
	var buf bytes.Buffer
	if tg.bigEndian {
		order = binary.BigEndian
		buf.WriteString("MM")
	} else {
		buf.WriteString("II")
	}
	buf.Write(order.AppendUint16(nil, 42))
	buf.Write(order.AppendUint32(nil, 0)) // Patched below.

	chunkWidth, chunkLength := tg.width, tg.rowsPerStrip
	if tg.tileSize != 0 {
		chunkWidth, chunkLength = tg.tileSize, tg.tileSize
	} else if chunkLength == 0 {
		chunkLength = tg.height
	}
	chunksAcross := (tg.width + chunkWidth - 1) / chunkWidth
	chunksDown := (tg.height + chunkLength - 1) / chunkLength

	var offsets, byteCounts []uint32
	for chunkR := range chunksDown {
		for chunkC := range chunksAcross {
			rows := chunkLength
			if tg.tileSize == 0 {
				rows = min(chunkLength, tg.height-chunkR*chunkLength)
			}
			var raw []byte
			for y := chunkR * chunkLength; y < chunkR*chunkLength+rows; y++ {
				var previous uint64
				for x := chunkC * chunkWidth; x < (chunkC+1)*chunkWidth; x++ {
					sample := 0.0
					if x < tg.width && y < tg.height {
						sample = tg.samples[y*tg.width+x]
					}
					bits := tg.sampleBits(sample)
					value := bits
					if tg.predictor == predictorHorizontal && x != chunkC*chunkWidth {
						value = bits - previous
					}
					previous = bits
					raw = tg.appendSample(raw, order, value)
				}
			}
			data := tg.compress(t, raw)
			offsets = append(offsets, uint32(buf.Len()))
			byteCount := uint32(len(data))
			if tg.byteCount != 0 {
				byteCount = tg.byteCount
			}
			byteCounts = append(byteCounts, byteCount)
			buf.Write(data)
			if buf.Len()%2 == 1 {
				buf.WriteByte(0)
			}
		}
	}

	shorts := func(values ...uint16) []byte {
		var b []byte
		for _, value := range values {
			b = order.AppendUint16(b, value)
		}
		return b
	}
	longs := func(values ...uint32) []byte {
		var b []byte
		for _, value := range values {
			b = order.AppendUint32(b, value)
		}
		return b
	}
	doubles := func(values ...float64) []byte {
		var b []byte
		for _, value := range values {
			b = order.AppendUint64(b, math.Float64bits(value))
		}
		return b
	}

	rasterType := uint16(1)
	if tg.pixelIsPoint {
		rasterType = rasterTypePixelIsPoint
	}
	geoKeys := []uint16{1, 1, 0, 2, uint16(GeoKeyGTModelType), 0, 1, ModelTypeProjected, uint16(GeoKeyGTRasterType), 0, 1, rasterType}
	if tg.srid != 0 {
		geoKeys[3] = 3
		geoKeys = append(geoKeys, uint16(GeoKeyProjectedCRS), 0, 1, uint16(tg.srid))
	}

	entries := []testIFDEntry{
		{256, typeLong, 1, longs(uint32(tg.width))},
		{257, typeLong, 1, longs(uint32(tg.height))},
		{258, typeShort, 1, shorts(tg.bitsPerSample)},
		{259, typeShort, 1, shorts(tg.compression)},
		{262, typeShort, 1, shorts(1)},
		{277, typeShort, 1, shorts(1)},
		{284, typeShort, 1, shorts(planarConfigChunky)},
		{317, typeShort, 1, shorts(tg.predictor)},
		{339, typeShort, 1, shorts(tg.sampleFormat)},
		{33550, typeDouble, 3, doubles(tg.pixelWidth, tg.pixelHeight, 0)},
		{33922, typeDouble, 6, doubles(0, 0, 0, tg.originX, tg.originY, 0)},
		{34735, typeShort, uint32(len(geoKeys)), shorts(geoKeys...)},
	}
	if tg.tileSize != 0 {
		entries = append(entries,
			testIFDEntry{322, typeLong, 1, longs(uint32(tg.tileSize))},
			testIFDEntry{323, typeLong, 1, longs(uint32(tg.tileSize))},
			testIFDEntry{324, typeLong, uint32(len(offsets)), longs(offsets...)},
			testIFDEntry{325, typeLong, uint32(len(byteCounts)), longs(byteCounts...)},
		)
	} else {
		entries = append(entries,
			testIFDEntry{273, typeLong, uint32(len(offsets)), longs(offsets...)},
			testIFDEntry{278, typeLong, 1, longs(uint32(chunkLength))},
			testIFDEntry{279, typeLong, uint32(len(byteCounts)), longs(byteCounts...)},
		)
	}
	if tg.noData != "" {
		noData := append([]byte(tg.noData), 0)
		entries = append(entries, testIFDEntry{42113, typeASCII, uint32(len(noData)), noData})
	}
	slices.SortFunc(entries, func(a, b testIFDEntry) int {
		return int(a.tag) - int(b.tag)
	})

	ifdOffset := buf.Len()
	dataOffset := ifdOffset + 2 + 12*len(entries) + 4
	var ifd, data []byte
	ifd = order.AppendUint16(ifd, uint16(len(entries)))
	for _, entry := range entries {
		ifd = order.AppendUint16(ifd, entry.tag)
		ifd = order.AppendUint16(ifd, entry.typ)
		ifd = order.AppendUint32(ifd, entry.count)
		if len(entry.data) <= 4 {
			value := make([]byte, 4)
			copy(value, entry.data)
			ifd = append(ifd, value...)
			continue
		}
		ifd = order.AppendUint32(ifd, uint32(dataOffset+len(data)))
		data = append(data, entry.data...)
		if len(data)%2 == 1 {
			data = append(data, 0)
		}
	}
	ifd = order.AppendUint32(ifd, 0)
	buf.Write(ifd)
	buf.Write(data)

	result := buf.Bytes()
	order.PutUint32(result[4:8], uint32(ifdOffset))
	return result
}

func (tg testGeoTIFF) sampleBits(sample float64) uint64 {
	switch [2]uint16{tg.sampleFormat, tg.bitsPerSample} {
	case [2]uint16{sampleFormatIEEEFP, 32}:
		return uint64(math.Float32bits(float32(sample)))
	case [2]uint16{sampleFormatIEEEFP, 64}:
		return math.Float64bits(sample)
	case [2]uint16{sampleFormatInt, 16}:
		return uint64(uint16(int16(sample)))
	case [2]uint16{sampleFormatInt, 32}:
		return uint64(uint32(int32(sample)))
	default:
		return uint64(sample)
	}
}

func (tg testGeoTIFF) appendSample(b []byte, order binary.AppendByteOrder, value uint64) []byte {
	switch tg.bitsPerSample {
	case 8:
		return append(b, byte(value))
	case 16:
		return order.AppendUint16(b, uint16(value))
	case 32:
		return order.AppendUint32(b, uint32(value))
	default:
		return order.AppendUint64(b, value)
	}
}

func (tg testGeoTIFF) compress(t testing.TB, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	switch tg.compression {
	case compressionLZW:
		// compress/lzw only differs from TIFF's variant once codes exceed
		// nine bits, so it is only usable for small chunks.
		assert.True(t, len(raw) < 200)
		w := lzw.NewWriter(&buf, lzw.MSB, 8)
		_, err := w.Write(raw)
		assert.NoError(t, err)
		assert.NoError(t, w.Close())
	case compressionDeflate, compressionDeflateOld:
		w := zlib.NewWriter(&buf)
		_, err := w.Write(raw)
		assert.NoError(t, err)
		assert.NoError(t, w.Close())
	default:
		buf.Write(raw)
	}
	return buf.Bytes()
}

// A testGrid describes a regular grid of tiles for catalog tests, in the
// layout of the 43 Flemish map sheets.
type testGrid struct {
	tiles      int
	across     int
	originX    float64
	originY    float64
	tileWidth  float64
	tileHeight float64
	pixels     int
}

var flandersTestGrid = testGrid{
	tiles:      FlandersTileCount,
	across:     4,
	originX:    70000,
	originY:    230000,
	tileWidth:  32000,
	tileHeight: 20000,
	pixels:     4,
}

func (g testGrid) tileID(i int) TileID {
	return TileID(twoDigits(i + 1))
}

func (g testGrid) bounds(i int) BoundingBox {
	col, row := i%g.across, i/g.across
	minX := g.originX + float64(col)*g.tileWidth
	maxY := g.originY - float64(row)*g.tileHeight
	return BoundingBox{
		Min: Point{minX, maxY - g.tileHeight},
		Max: Point{minX + g.tileWidth, maxY},
	}
}

func (g testGrid) geoTIFF(i int, base float64) testGeoTIFF {
	bounds := g.bounds(i)
	samples := make([]float64, g.pixels*g.pixels)
	for j := range samples {
		samples[j] = base + float64(j)
	}
	return testGeoTIFF{
		width:       g.pixels,
		height:      g.pixels,
		originX:     bounds.Min[0],
		originY:     bounds.Max[1],
		pixelWidth:  g.tileWidth / float64(g.pixels),
		pixelHeight: g.tileHeight / float64(g.pixels),
		samples:     samples,
		noData:      "-9999",
		srid:        Lambert72SRID,
	}
}

// fsys returns the DSM and DTM collections of g.
func (g testGrid) fsys(t testing.TB) (fstest.MapFS, fstest.MapFS) {
	t.Helper()
	dsmFS := make(fstest.MapFS)
	dtmFS := make(fstest.MapFS)
	for i := range g.tiles {
		tileID := string(g.tileID(i))
		dsmFS["GeoTIFF/DHMVIIDSMRAS1m_k"+tileID+".tif"] = &fstest.MapFile{
			Data: g.geoTIFF(i, 20).encode(t),
		}
		dtmFS["GeoTIFF/DHMVIIDTMRAS1m_k"+tileID+".tif"] = &fstest.MapFile{
			Data: g.geoTIFF(i, 5).encode(t),
		}
	}
	return dsmFS, dtmFS
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
