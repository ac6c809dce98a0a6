package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/twpayne/go-chm"
	"github.com/twpayne/go-chm/basisregisters"
)

type config struct {
	DSMPath          string `envconfig:"DSM_PATH" default:"assets/DSM"`
	DTMPath          string `envconfig:"DTM_PATH" default:"assets/DTM"`
	GeocoderURL      string `envconfig:"GEOCODER_URL" default:"https://api.basisregisters.vlaanderen.be/v1"`
	LogLevel         string `envconfig:"LOG_LEVEL" default:"info"`
	LogConsole       bool   `envconfig:"LOG_CONSOLE" default:"true"`
	Concurrency      int    `envconfig:"CONCURRENCY" default:"8"`
	GeocodeCacheSize int    `envconfig:"GEOCODE_CACHE_SIZE" default:"128"`
	AnyTileCount     bool   `envconfig:"ANY_TILE_COUNT"`
}

type app struct {
	config config
	logger zerolog.Logger
}

func newLogger(w io.Writer, level string, console bool) zerolog.Logger {
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	logger := zerolog.New(w).With().Timestamp().Logger()
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logger.Level(zerolog.DebugLevel)
	case "warn":
		return logger.Level(zerolog.WarnLevel)
	case "error":
		return logger.Level(zerolog.ErrorLevel)
	default:
		return logger.Level(zerolog.InfoLevel)
	}
}

func (a *app) buildCatalog(ctx context.Context) (*chm.Catalog, error) {
	options := []chm.CatalogOption{
		chm.WithConcurrency(a.config.Concurrency),
		chm.WithLogger(a.logger),
	}
	if a.config.AnyTileCount {
		options = append(options, chm.WithExpectedTileCount(0))
	}
	return chm.BuildFlandersCatalog(ctx, os.DirFS(a.config.DSMPath), os.DirFS(a.config.DTMPath), options...)
}

func (a *app) runTiles(cmd *cobra.Command, args []string) error {
	catalog, err := a.buildCatalog(cmd.Context())
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	for _, entry := range catalog.Entries() {
		fmt.Fprintf(w, "%s\t[%g %g %g %g]\t%s\t%s\n",
			entry.TileID,
			entry.Bounds.Min[0], entry.Bounds.Min[1], entry.Bounds.Max[0], entry.Bounds.Max[1],
			entry.SurfacePath, entry.TerrainPath)
	}
	return nil
}

func (a *app) runResolve(cmd *cobra.Command, args []string) error {
	x, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return err
	}
	y, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return err
	}
	catalog, err := a.buildCatalog(cmd.Context())
	if err != nil {
		return err
	}
	entry, err := catalog.Resolve(chm.Point{x, y})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", entry.TileID, entry.SurfacePath, entry.TerrainPath)
	return nil
}

func (a *app) runHeight(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	address := chm.Address{
		Street:     args[0],
		Number:     args[1],
		PostalCode: args[2],
		Town:       args[3],
	}

	catalog, err := a.buildCatalog(ctx)
	if err != nil {
		return err
	}
	geocoder, err := chm.NewCachingGeocoder(
		basisregisters.NewClient(basisregisters.WithBaseURL(a.config.GeocoderURL)),
		a.config.GeocodeCacheSize,
	)
	if err != nil {
		return err
	}
	service, err := chm.NewService(catalog,
		chm.WithGeocoder(geocoder),
		chm.WithServiceLogger(a.logger),
	)
	if err != nil {
		return err
	}

	result, err := service.HeightModel(ctx, address)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	footprintBounds := result.Footprint.Bound()
	transform := result.Height.Transform
	stats := result.Height.Stats()
	fmt.Fprintf(w, "address:\t%s\n", address)
	fmt.Fprintf(w, "point:\t%g %g\n", result.Point[0], result.Point[1])
	fmt.Fprintf(w, "footprint bounds:\t%g %g %g %g\n",
		footprintBounds.Min[0], footprintBounds.Min[1], footprintBounds.Max[0], footprintBounds.Max[1])
	fmt.Fprintf(w, "tile:\t%s\n", result.Tile.TileID)
	fmt.Fprintf(w, "%s:\t%s\n", chm.Surface, result.Tile.SurfacePath)
	fmt.Fprintf(w, "%s:\t%s\n", chm.Terrain, result.Tile.TerrainPath)
	fmt.Fprintf(w, "transform:\t%g %g %g %g %g %g\n", transform.A, transform.B, transform.C, transform.D, transform.E, transform.F)
	fmt.Fprintf(w, "shape:\t%v\n", result.Height.Shape())
	fmt.Fprintf(w, "height at point:\t%.2f\n", result.PointHeight)
	fmt.Fprintf(w, "height:\tmin %.2f max %.2f mean %.2f over %d cells\n", stats.Min, stats.Max, stats.Mean, stats.Count)
	return nil
}

func run() error {
	a := &app{}
	if err := envconfig.Process("chm", &a.config); err != nil {
		return err
	}

	rootCmd := &cobra.Command{
		Use:           "chm",
		Short:         "Compute building height models from DSM and DTM tiles",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.logger = newLogger(cmd.ErrOrStderr(), a.config.LogLevel, a.config.LogConsole)
		},
	}
	persistentFlags := rootCmd.PersistentFlags()
	persistentFlags.StringVar(&a.config.DSMPath, "dsm-path", a.config.DSMPath, "path to DSM tiles")
	persistentFlags.StringVar(&a.config.DTMPath, "dtm-path", a.config.DTMPath, "path to DTM tiles")
	persistentFlags.StringVar(&a.config.GeocoderURL, "geocoder-url", a.config.GeocoderURL, "Basisregisters Vlaanderen API URL")
	persistentFlags.StringVar(&a.config.LogLevel, "log-level", a.config.LogLevel, "log level")
	persistentFlags.BoolVar(&a.config.LogConsole, "log-console", a.config.LogConsole, "log human readable output")
	persistentFlags.IntVar(&a.config.Concurrency, "concurrency", a.config.Concurrency, "header read concurrency")
	persistentFlags.IntVar(&a.config.GeocodeCacheSize, "geocode-cache-size", a.config.GeocodeCacheSize, "number of geocoded addresses to cache")
	persistentFlags.BoolVar(&a.config.AnyTileCount, "any-tile-count", a.config.AnyTileCount, "accept catalogs with other than 43 tiles")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "tiles",
			Short: "List the tile catalog",
			Args:  cobra.NoArgs,
			RunE:  a.runTiles,
		},
		&cobra.Command{
			Use:   "resolve x y",
			Short: "Print the tile containing a Lambert 72 coordinate",
			Args:  cobra.ExactArgs(2),
			RunE:  a.runResolve,
		},
		&cobra.Command{
			Use:   "height street number postal-code town",
			Short: "Print the height model of the building at an address",
			Args:  cobra.ExactArgs(4),
			RunE:  a.runHeight,
		},
	)

	return rootCmd.ExecuteContext(context.Background())
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
