package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"historical-imagery/internal/common"
	"historical-imagery/internal/config"
	"historical-imagery/internal/region"
)

// Linker flags
var (
	PostHogKey  string
	PostHogHost string
	AppVersion  string = "0.0.0-dev"
)

type globalFlags struct {
	configPath string
	verbose    bool
}

// regionFlags selects the area of interest
type regionFlags struct {
	points     string
	lowerLeft  string
	upperRight string
}

func (f regionFlags) region() (*region.Region, error) {
	switch {
	case f.points != "" && (f.lowerLeft != "" || f.upperRight != ""):
		return nil, fmt.Errorf("use either --region or --lower-left/--upper-right, not both")
	case f.points != "":
		return region.ParsePoints(f.points)
	case f.lowerLeft != "" && f.upperRight != "":
		ll, err := region.ParseLatLon(f.lowerLeft)
		if err != nil {
			return nil, fmt.Errorf("--lower-left: %w", err)
		}
		ur, err := region.ParseLatLon(f.upperRight)
		if err != nil {
			return nil, fmt.Errorf("--upper-right: %w", err)
		}
		return region.FromCorners(ll, ur)
	default:
		return nil, fmt.Errorf("a region is required: --region or --lower-left and --upper-right")
	}
}

// newRootCmd builds the command tree. The returned func releases the App
// created for the command that ran.
func newRootCmd(in io.Reader, out io.Writer) (*cobra.Command, func()) {
	var g globalFlags
	var app *App

	root := &cobra.Command{
		Use:   "historical-imagery",
		Short: "Find historical satellite imagery dates over an area",
		Long: `historical-imagery reports which capture dates of Google Earth
TimeMachine and Esri World Imagery Wayback cover an area of interest at a
given zoom level, as an interactive glyph map or as GeoJSON.`,
		Version:       AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("verbose") {
				settings.Verbose = g.verbose
			}
			if settings.Verbose {
				log.SetOutput(os.Stderr)
			} else {
				log.SetOutput(io.Discard)
			}

			app, err = NewApp(settings, in, out)
			return err
		},
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "settings file (default ~/.walkthru-earth/historical-imagery/settings.toml)")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log requests to stderr")

	appFn := func() *App { return app }
	root.AddCommand(
		newAvailabilityCmd(appFn),
		newInfoCmd(appFn),
		newLayersCmd(appFn),
	)
	shutdown := func() {
		if app != nil {
			app.Shutdown()
		}
	}
	return root, shutdown
}

func newAvailabilityCmd(app func() *App) *cobra.Command {
	var (
		provider    string
		zoom        int
		concurrency int
		geoJSON     bool
		rf          regionFlags
	)

	cmd := &cobra.Command{
		Use:   "availability",
		Short: "Show every capture date over a region",
		Example: `  historical-imagery availability -p esri -z 15 --lower-left 30.04,31.23 --upper-right 30.06,31.25
  historical-imagery availability -p google -z 17 --region "30.04,31.23;30.06,31.23;30.05,31.25" --geojson`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := common.ParseProviderKind(provider)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("concurrency") && concurrency < 1 {
				return fmt.Errorf("--concurrency must be a positive integer, got %d", concurrency)
			}
			r, err := rf.region()
			if err != nil {
				return err
			}
			return app().Availability(cmd.Context(), AvailabilityRequest{
				Provider:    kind,
				Zoom:        zoom,
				Region:      r,
				Concurrency: concurrency,
				GeoJSON:     geoJSON,
			})
		},
	}
	cmd.Flags().StringVarP(&provider, "provider", "p", "esri", "imagery archive: esri or google")
	cmd.Flags().IntVarP(&zoom, "zoom", "z", 0, "zoom level")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "concurrent requests (default from settings)")
	cmd.Flags().BoolVar(&geoJSON, "geojson", false, "write a GeoJSON FeatureCollection instead of the interactive view")
	cmd.Flags().StringVar(&rf.points, "region", "", `polygon as "lat,lon;lat,lon;..."`)
	cmd.Flags().StringVar(&rf.lowerLeft, "lower-left", "", "south-west corner as lat,lon")
	cmd.Flags().StringVar(&rf.upperRight, "upper-right", "", "north-east corner as lat,lon")
	_ = cmd.MarkFlagRequired("zoom")
	return cmd
}

func newInfoCmd(app func() *App) *cobra.Command {
	var (
		provider string
		zoom     int
		location string
	)

	cmd := &cobra.Command{
		Use:     "info",
		Short:   "List the capture dates at one location",
		Example: `  historical-imagery info -p google -z 18 --location 30.0444,31.2357`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := common.ParseProviderKind(provider)
			if err != nil {
				return err
			}
			p, err := region.ParseLatLon(location)
			if err != nil {
				return fmt.Errorf("--location: %w", err)
			}
			return app().Info(cmd.Context(), kind, zoom, p)
		},
	}
	cmd.Flags().StringVarP(&provider, "provider", "p", "esri", "imagery archive: esri or google")
	cmd.Flags().IntVarP(&zoom, "zoom", "z", 0, "zoom level")
	cmd.Flags().StringVarP(&location, "location", "l", "", "location as lat,lon")
	_ = cmd.MarkFlagRequired("zoom")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}

func newLayersCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "layers",
		Short: "List the Esri Wayback releases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().Layers(cmd.Context())
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root, shutdown := newRootCmd(os.Stdin, os.Stdout)
	err := root.ExecuteContext(ctx)
	shutdown()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
