package chm

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"strconv"
	"strings"

	"github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"
	_ "github.com/google/tiff/geotiff"
	"golang.org/x/image/tiff/lzw"
)

const (
	compressionNone        = 1
	compressionLZW         = 5
	compressionDeflate     = 8
	compressionDeflateOld  = 32946
	predictorNone          = 1
	predictorHorizontal    = 2
	sampleFormatUint       = 1
	sampleFormatInt        = 2
	sampleFormatIEEEFP     = 3
	planarConfigChunky     = 1
	rasterTypePixelIsPoint = 2
)

var errShortRead = errors.New("short read")

// A readAtSeeker is the subset of file methods needed to parse a TIFF.
type readAtSeeker interface {
	io.Reader
	io.ReaderAt
	io.Seeker
}

// A geoTIFFIFD is a struct into which github.com/google/tiff can unmarshal an
// IFD.
type geoTIFFIFD struct {
	ImageWidth          uint32    `tiff:"field,tag=256"`
	ImageLength         uint32    `tiff:"field,tag=257"`
	BitsPerSample       uint16    `tiff:"field,tag=258"`
	Compression         uint16    `tiff:"field,tag=259"`
	StripOffsets        []uint64  `tiff:"field,tag=273"`
	SamplesPerPixel     uint16    `tiff:"field,tag=277"`
	RowsPerStrip        uint32    `tiff:"field,tag=278"`
	StripByteCounts     []uint64  `tiff:"field,tag=279"`
	PlanarConfiguration uint16    `tiff:"field,tag=284"`
	Predictor           uint16    `tiff:"field,tag=317"`
	TileWidth           uint32    `tiff:"field,tag=322"`
	TileLength          uint32    `tiff:"field,tag=323"`
	TileOffsets         []uint64  `tiff:"field,tag=324"`
	TileByteCounts      []uint64  `tiff:"field,tag=325"`
	SampleFormat        uint16    `tiff:"field,tag=339"`
	ModelPixelScaleTag  []float64 `tiff:"field,tag=33550"`
	ModelTiepointTag    []float64 `tiff:"field,tag=33922"`
	GeoKeyDirectoryTag  []uint16  `tiff:"field,tag=34735"`
	GeoDoubleParamsTag  []float64 `tiff:"field,tag=34736"`
	GeoASCIIParamsTag   string    `tiff:"field,tag=34737"`
	GDALNoData          string    `tiff:"field,tag=42113"`
}

// A RasterInfo describes the georeferencing of a raster.
type RasterInfo struct {
	Width     int
	Height    int
	Transform Affine
	Bounds    BoundingBox
	NoData    float64
	HasNoData bool
	SRID      int
}

// PixelSize returns the width and height of a pixel in CRS units.
func (i *RasterInfo) PixelSize() (float64, float64) {
	return i.Transform.A, -i.Transform.E
}

// A GeoTIFF is an open single-band GeoTIFF file.
type GeoTIFF struct {
	RasterInfo
	name            string
	file            fs.File
	reader          readAtSeeker
	size            int64
	byteOrder       binary.ByteOrder
	chunkWidth      int
	chunkLength     int
	chunksAcross    int
	chunksDown      int
	tiled           bool
	chunkOffsets    []uint64
	chunkByteCounts []uint64
	bitsPerSample   int
	sampleFormat    int
	compression     int
	predictor       int
}

// OpenGeoTIFF opens the GeoTIFF file name in fsys and reads its header. The
// caller must call Close.
func OpenGeoTIFF(fsys fs.FS, name string) (*GeoTIFF, error) {
	file, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			_ = file.Close()
		}
	}()

	reader, isReadAtSeeker := file.(readAtSeeker)
	if !isReadAtSeeker {
		return nil, fmt.Errorf("%s: %w: file does not support random access", name, errors.ErrUnsupported)
	}

	fileInfo, err := file.Stat()
	if err != nil {
		return nil, err
	}

	g := &GeoTIFF{
		name:   name,
		file:   file,
		reader: reader,
		size:   fileInfo.Size(),
	}
	if err := g.readHeader(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	ok = true
	return g, nil
}

// ReadRasterInfo reads the header of the GeoTIFF file name in fsys. The file
// is closed before ReadRasterInfo returns.
func ReadRasterInfo(fsys fs.FS, name string) (*RasterInfo, error) {
	g, err := OpenGeoTIFF(fsys, name)
	if err != nil {
		return nil, err
	}
	info := g.RasterInfo
	if err := g.Close(); err != nil {
		return nil, err
	}
	return &info, nil
}

func (g *GeoTIFF) Close() error {
	return g.file.Close()
}

// Name returns the name that g was opened with.
func (g *GeoTIFF) Name() string {
	return g.name
}

func (g *GeoTIFF) readHeader() error {
	var magic [2]byte
	switch n, err := g.reader.ReadAt(magic[:], 0); {
	case err != nil && n != len(magic):
		return err
	case string(magic[:]) == "II":
		g.byteOrder = binary.LittleEndian
	case string(magic[:]) == "MM":
		g.byteOrder = binary.BigEndian
	default:
		return fmt.Errorf("%w: not a TIFF file", errors.ErrUnsupported)
	}

	tiffTIFF, err := tiff.Parse(g.reader, tiff.GetTagSpace("GeoTIFF"), nil)
	if err != nil {
		return err
	}

	// Further IFDs hold overviews or masks, which are not used.
	if len(tiffTIFF.IFDs()) == 0 {
		return errors.New("no IFDs")
	}

	var ifd geoTIFFIFD
	if err := tiff.UnmarshalIFD(tiffTIFF.IFDs()[0], &ifd); err != nil {
		return err
	}
	setDefault(&ifd.Compression, compressionNone)
	setDefault(&ifd.Predictor, predictorNone)
	setDefault(&ifd.SampleFormat, sampleFormatUint)
	setDefault(&ifd.SamplesPerPixel, 1)
	setDefault(&ifd.PlanarConfiguration, planarConfigChunky)

	if ifd.ImageWidth == 0 || ifd.ImageLength == 0 {
		return errors.New("empty image")
	}
	if ifd.SamplesPerPixel != 1 || ifd.PlanarConfiguration != planarConfigChunky {
		return fmt.Errorf("%w: %d samples per pixel", errors.ErrUnsupported, ifd.SamplesPerPixel)
	}
	switch ifd.Compression {
	case compressionNone, compressionLZW, compressionDeflate, compressionDeflateOld:
	default:
		return fmt.Errorf("%w: compression %d", errors.ErrUnsupported, ifd.Compression)
	}
	switch {
	case ifd.Predictor == predictorNone:
	case ifd.Predictor == predictorHorizontal && ifd.SampleFormat != sampleFormatIEEEFP:
	default:
		return fmt.Errorf("%w: predictor %d", errors.ErrUnsupported, ifd.Predictor)
	}
	switch [2]uint16{ifd.SampleFormat, ifd.BitsPerSample} {
	case [2]uint16{sampleFormatUint, 8},
		[2]uint16{sampleFormatUint, 16},
		[2]uint16{sampleFormatInt, 16},
		[2]uint16{sampleFormatUint, 32},
		[2]uint16{sampleFormatInt, 32},
		[2]uint16{sampleFormatIEEEFP, 32},
		[2]uint16{sampleFormatIEEEFP, 64}:
	default:
		return fmt.Errorf("%w: sample format %d with %d bits per sample", errors.ErrUnsupported, ifd.SampleFormat, ifd.BitsPerSample)
	}

	g.Width = int(ifd.ImageWidth)
	g.Height = int(ifd.ImageLength)
	g.bitsPerSample = int(ifd.BitsPerSample)
	g.sampleFormat = int(ifd.SampleFormat)
	g.compression = int(ifd.Compression)
	g.predictor = int(ifd.Predictor)

	if ifd.TileWidth != 0 && ifd.TileLength != 0 {
		g.tiled = true
		g.chunkWidth = int(ifd.TileWidth)
		g.chunkLength = int(ifd.TileLength)
		g.chunkOffsets = ifd.TileOffsets
		g.chunkByteCounts = ifd.TileByteCounts
	} else {
		rowsPerStrip := int(ifd.RowsPerStrip)
		if rowsPerStrip == 0 || rowsPerStrip > g.Height {
			rowsPerStrip = g.Height
		}
		g.chunkWidth = g.Width
		g.chunkLength = rowsPerStrip
		g.chunkOffsets = ifd.StripOffsets
		g.chunkByteCounts = ifd.StripByteCounts
	}
	g.chunksAcross = (g.Width + g.chunkWidth - 1) / g.chunkWidth
	g.chunksDown = (g.Height + g.chunkLength - 1) / g.chunkLength
	chunksPerImage := g.chunksAcross * g.chunksDown
	if len(g.chunkOffsets) != chunksPerImage || len(g.chunkByteCounts) != chunksPerImage {
		return errors.New("incorrect number of chunk byte counts or offsets")
	}
	for i, chunkByteCount := range g.chunkByteCounts {
		if chunkOffset := g.chunkOffsets[i]; chunkByteCount > uint64(g.size) || chunkOffset > uint64(g.size)-chunkByteCount {
			return fmt.Errorf("chunk %d: %d bytes at offset %d outside %d byte file", i, chunkByteCount, chunkOffset, g.size)
		}
	}

	if err := g.readGeoreferencing(&ifd); err != nil {
		return err
	}

	if noData := strings.TrimSpace(strings.TrimRight(ifd.GDALNoData, "\x00")); noData != "" {
		value, err := strconv.ParseFloat(noData, 64)
		if err != nil {
			return fmt.Errorf("GDAL_NODATA: %w", err)
		}
		g.NoData = value
		g.HasNoData = true
	}

	return nil
}

func (g *GeoTIFF) readGeoreferencing(ifd *geoTIFFIFD) error {
	if len(ifd.ModelPixelScaleTag) != 3 || len(ifd.ModelTiepointTag) != 6 {
		return fmt.Errorf("%w: georeferencing without pixel scale and a single tie point", errors.ErrUnsupported)
	}
	scaleX, scaleY := ifd.ModelPixelScaleTag[0], ifd.ModelPixelScaleTag[1]
	if !(scaleX > 0) || !(scaleY > 0) {
		return fmt.Errorf("invalid pixel scale %g, %g", scaleX, scaleY)
	}
	i, j := ifd.ModelTiepointTag[0], ifd.ModelTiepointTag[1]
	x, y := ifd.ModelTiepointTag[3], ifd.ModelTiepointTag[4]

	var rasterType int
	if len(ifd.GeoKeyDirectoryTag) != 0 {
		parsedGeoKeys, err := ParseGeoKeys(ifd.GeoKeyDirectoryTag, ifd.GeoDoubleParamsTag, []byte(ifd.GeoASCIIParamsTag))
		if err != nil {
			return err
		}
		g.SRID = parsedGeoKeys.EPSG()
		rasterType = parsedGeoKeys.Params[GeoKeyGTRasterType]
	}

	originX := x - i*scaleX
	originY := y + j*scaleY
	if rasterType == rasterTypePixelIsPoint {
		originX -= scaleX / 2
		originY += scaleY / 2
	}
	g.Transform = Affine{
		A: scaleX,
		C: originX,
		E: -scaleY,
		F: originY,
	}
	g.Bounds = BoundingBox{
		Min: Point{originX, originY - float64(g.Height)*scaleY},
		Max: Point{originX + float64(g.Width)*scaleX, originY},
	}
	return nil
}

// ReadWindow returns the samples of the window with top-left pixel (col,
// row) and size cols × rows in row-major order. The window must lie within
// the image. No-data samples are returned as NaN.
func (g *GeoTIFF) ReadWindow(ctx context.Context, col, row, cols, rows int) ([]float64, error) {
	if col < 0 || row < 0 || cols <= 0 || rows <= 0 || col+cols > g.Width || row+rows > g.Height {
		return nil, fmt.Errorf("%s: window %d,%d+%dx%d outside %dx%d image", g.name, col, row, cols, rows, g.Width, g.Height)
	}
	samples := make([]float64, cols*rows)
	for chunkR := row / g.chunkLength; chunkR <= (row+rows-1)/g.chunkLength; chunkR++ {
		for chunkC := col / g.chunkWidth; chunkC <= (col+cols-1)/g.chunkWidth; chunkC++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			chunkSamples, err := g.readChunk(chunkC, chunkR)
			if err != nil {
				return nil, fmt.Errorf("%s: chunk %d,%d: %w", g.name, chunkC, chunkR, err)
			}
			x0 := max(col, chunkC*g.chunkWidth)
			x1 := min(col+cols, (chunkC+1)*g.chunkWidth)
			y0 := max(row, chunkR*g.chunkLength)
			y1 := min(row+rows, (chunkR+1)*g.chunkLength)
			for y := y0; y < y1; y++ {
				src := chunkSamples[(y-chunkR*g.chunkLength)*g.chunkWidth:]
				dst := samples[(y-row)*cols:]
				for x := x0; x < x1; x++ {
					dst[x-col] = src[x-chunkC*g.chunkWidth]
				}
			}
		}
	}
	return samples, nil
}

// chunkRows returns the number of rows stored in the chunk in row chunkR.
// Tiles are always padded to full size, the last strip is not.
func (g *GeoTIFF) chunkRows(chunkR int) int {
	if g.tiled {
		return g.chunkLength
	}
	return min(g.chunkLength, g.Height-chunkR*g.chunkLength)
}

// readChunk returns the decoded samples of the tile or strip at (chunkC,
// chunkR).
func (g *GeoTIFF) readChunk(chunkC, chunkR int) ([]float64, error) {
	chunkIndex := chunkC + g.chunksAcross*chunkR
	chunkByteCount := g.chunkByteCounts[chunkIndex]
	chunkOffset := g.chunkOffsets[chunkIndex]
	compressedData := make([]byte, chunkByteCount)
	switch n, err := g.reader.ReadAt(compressedData, int64(chunkOffset)); {
	case n != int(chunkByteCount) && err != nil:
		return nil, err
	case n != int(chunkByteCount):
		return nil, errShortRead
	}
	clipChunkReads.Inc()

	rows := g.chunkRows(chunkR)
	chunkData, err := g.decompressChunkData(compressedData, g.chunkWidth*rows*g.bitsPerSample/8)
	if err != nil {
		return nil, err
	}
	if g.predictor == predictorHorizontal {
		g.undoHorizontalPredictor(chunkData, rows)
	}
	return g.decodeChunkData(chunkData), nil
}

// decompressChunkData decompresses compressedData into size bytes.
func (g *GeoTIFF) decompressChunkData(compressedData []byte, size int) ([]byte, error) {
	var r io.Reader
	switch g.compression {
	case compressionNone:
		if len(compressedData) < size {
			return nil, errShortRead
		}
		return compressedData[:size], nil
	case compressionLZW:
		lzwReader := lzw.NewReader(bytes.NewReader(compressedData), lzw.MSB, 8)
		defer lzwReader.Close()
		r = lzwReader
	case compressionDeflate, compressionDeflateOld:
		zlibReader, err := zlib.NewReader(bytes.NewReader(compressedData))
		if err != nil {
			return nil, err
		}
		defer zlibReader.Close()
		r = zlibReader
	}
	chunkData := make([]byte, size)
	if _, err := io.ReadFull(r, chunkData); err != nil {
		return nil, err
	}
	return chunkData, nil
}

// undoHorizontalPredictor reverses horizontal differencing in place.
func (g *GeoTIFF) undoHorizontalPredictor(chunkData []byte, rows int) {
	bytesPerSample := g.bitsPerSample / 8
	rowBytes := g.chunkWidth * bytesPerSample
	for r := range rows {
		rowData := chunkData[r*rowBytes : (r+1)*rowBytes]
		switch bytesPerSample {
		case 1:
			for i := 1; i < len(rowData); i++ {
				rowData[i] += rowData[i-1]
			}
		case 2:
			for i := 2; i < len(rowData); i += 2 {
				g.byteOrder.PutUint16(rowData[i:], g.byteOrder.Uint16(rowData[i:])+g.byteOrder.Uint16(rowData[i-2:]))
			}
		case 4:
			for i := 4; i < len(rowData); i += 4 {
				g.byteOrder.PutUint32(rowData[i:], g.byteOrder.Uint32(rowData[i:])+g.byteOrder.Uint32(rowData[i-4:]))
			}
		}
	}
}

// decodeChunkData decodes chunkData into samples, replacing no-data with NaN.
// The result always holds a full chunk; rows missing from a short last strip
// are NaN.
func (g *GeoTIFF) decodeChunkData(chunkData []byte) []float64 {
	samples := make([]float64, g.chunkWidth*g.chunkLength)
	bytesPerSample := g.bitsPerSample / 8
	n := len(chunkData) / bytesPerSample
	noData := g.noDataSample()
	for i := range n {
		data := chunkData[i*bytesPerSample : (i+1)*bytesPerSample]
		var sample float64
		switch [2]int{g.sampleFormat, g.bitsPerSample} {
		case [2]int{sampleFormatUint, 8}:
			sample = float64(data[0])
		case [2]int{sampleFormatUint, 16}:
			sample = float64(g.byteOrder.Uint16(data))
		case [2]int{sampleFormatInt, 16}:
			sample = float64(int16(g.byteOrder.Uint16(data)))
		case [2]int{sampleFormatUint, 32}:
			sample = float64(g.byteOrder.Uint32(data))
		case [2]int{sampleFormatInt, 32}:
			sample = float64(int32(g.byteOrder.Uint32(data)))
		case [2]int{sampleFormatIEEEFP, 32}:
			sample = float64(math.Float32frombits(g.byteOrder.Uint32(data)))
		case [2]int{sampleFormatIEEEFP, 64}:
			sample = math.Float64frombits(g.byteOrder.Uint64(data))
		}
		if g.HasNoData && sample == noData {
			sample = math.NaN()
		}
		samples[i] = sample
	}
	for i := n; i < len(samples); i++ {
		samples[i] = math.NaN()
	}
	return samples
}

// noDataSample returns the declared no-data value as it compares against
// decoded samples.
func (g *GeoTIFF) noDataSample() float64 {
	if g.sampleFormat == sampleFormatIEEEFP && g.bitsPerSample == 32 {
		return float64(float32(g.NoData))
	}
	return g.NoData
}

func setDefault[T comparable](value *T, defaultValue T) {
	var zero T
	if *value == zero {
		*value = defaultValue
	}
}
