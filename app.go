package main

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log"
	goruntime "runtime"
	"text/tabwriter"
	"time"

	"github.com/paulmach/orb"
	"github.com/posthog/posthog-go"

	"historical-imagery/internal/availability"
	"historical-imagery/internal/common"
	"historical-imagery/internal/config"
	"historical-imagery/internal/esri"
	"historical-imagery/internal/geometry"
	"historical-imagery/internal/googleearth"
	"historical-imagery/internal/menu"
	"historical-imagery/internal/ratelimit"
	"historical-imagery/internal/region"
	"historical-imagery/internal/render"
)

// App wires the archive clients to the aggregator and renderers
type App struct {
	settings *config.Settings
	out      io.Writer

	rateLimitHandler *ratelimit.Handler
	esriClient       *esri.Client
	geClient         *googleearth.Client

	nodes    availability.NodeSource
	layers   availability.LayerSource
	catalog  layerCatalog
	selector menu.Selector
	unioner  geometry.Unioner
	phClient posthog.Client
}

// layerCatalog lists Wayback releases for the layers command
type layerCatalog interface {
	GetLayers(ctx context.Context) ([]*esri.Layer, error)
}

// AvailabilityRequest is one region query
type AvailabilityRequest struct {
	Provider    common.ProviderKind
	Zoom        int
	Region      *region.Region
	Concurrency int // zero means the configured default
	GeoJSON     bool
}

// NewApp creates the clients described by settings
func NewApp(settings *config.Settings, in io.Reader, out io.Writer) (*App, error) {
	rateLimitHandler := ratelimit.NewHandler()
	rateLimitHandler.SetRate(common.ProviderEsriWayback, settings.EsriRequestsPerSecond)
	rateLimitHandler.SetRate(common.ProviderGoogleEarth, settings.GoogleRequestsPerSecond)
	rateLimitHandler.SetOnRateLimit(func(event ratelimit.RateLimitEvent) {
		log.Printf("[RateLimit] %s", event.Message)
	})
	rateLimitHandler.SetOnRecovered(func(provider string) {
		log.Printf("[RateLimit] %s recovered", provider)
	})

	timeout := time.Duration(settings.RequestTimeoutSeconds) * time.Second
	esriClient := esri.NewClient(
		esri.WithTimeout(timeout),
		esri.WithRateLimit(rateLimitHandler),
	)
	geClient, err := googleearth.NewClient(
		googleearth.WithTimeout(timeout),
		googleearth.WithRateLimit(rateLimitHandler),
		googleearth.WithPacketCacheSize(settings.PacketCacheSize),
	)
	if err != nil {
		return nil, err
	}

	return &App{
		settings:         settings,
		out:              out,
		rateLimitHandler: rateLimitHandler,
		esriClient:       esriClient,
		geClient:         geClient,
		nodes:            googleearth.NodeSource{Client: geClient},
		layers:           esri.LayerSource{Client: esriClient},
		catalog:          esriClient,
		selector:         menu.Chooser{In: in, Out: out},
		unioner:          geometry.Cascaded{},
		phClient:         newPostHog(settings.Telemetry),
	}, nil
}

func newPostHog(t config.TelemetrySettings) posthog.Client {
	key := cmp.Or(t.PostHogKey, PostHogKey)
	if key == "" {
		return nil
	}
	client, err := posthog.NewWithConfig(key, posthog.Config{
		Endpoint: cmp.Or(t.PostHogHost, PostHogHost),
	})
	if err != nil {
		log.Printf("Failed to initialize PostHog: %v", err)
		return nil
	}
	return client
}

// TrackEvent sends an event to PostHog
func (a *App) TrackEvent(event string, props map[string]interface{}) {
	if a.phClient == nil {
		return
	}
	props["version"] = AppVersion
	props["os"] = goruntime.GOOS
	props["arch"] = goruntime.GOARCH
	_ = a.phClient.Enqueue(posthog.Capture{
		DistinctId: "cli_user",
		Event:      event,
		Properties: props,
	})
}

// Shutdown flushes telemetry
func (a *App) Shutdown() {
	if a.phClient != nil {
		a.phClient.Close()
	}
	if a.geClient != nil {
		entries, hits, misses := a.geClient.CacheStats()
		log.Printf("[TimeMachine] Packet cache: %d entries, %d hits, %d misses", entries, hits, misses)
	}
}

func tileSystem(kind common.ProviderKind) region.TileSystem {
	if kind == common.DateLayered {
		return esri.WebMercator{}
	}
	return googleearth.PlateCarree{}
}

// concurrency resolves the requested fan-out. The Wayback metadata service
// throttles scrapers, so its fan-out is capped.
func (a *App) concurrency(kind common.ProviderKind, requested int) int {
	n := requested
	if n < 1 {
		n = a.settings.Concurrency
	}
	if kind == common.DateLayered {
		n = min(n, a.settings.EsriMaxConcurrency)
	}
	return max(n, 1)
}

// aggregate validates the request and runs the aggregator
func (a *App) aggregate(ctx context.Context, req AvailabilityRequest) (*availability.Result, error) {
	if err := common.ValidateZoomForProvider(req.Zoom, req.Provider); err != nil {
		return nil, err
	}
	area, err := availability.NewArea(req.Region, tileSystem(req.Provider), req.Zoom)
	if err != nil {
		return nil, err
	}

	adapter := availability.NewAdapter(req.Provider, a.nodes, a.layers)
	concurrency := a.concurrency(req.Provider, req.Concurrency)
	start := time.Now()

	props := map[string]interface{}{
		"provider":    req.Provider.String(),
		"zoom":        req.Zoom,
		"tiles":       req.Region.Count(area.System, req.Zoom),
		"concurrency": concurrency,
	}
	res, err := availability.Aggregate(ctx, adapter, area, concurrency)
	props["duration_ms"] = time.Since(start).Milliseconds()
	if err != nil {
		props["error"] = err.Error()
		a.TrackEvent("availability_failed", props)
		return nil, err
	}
	props["dates"] = len(res.Dates())
	a.TrackEvent("availability_complete", props)
	return res, nil
}

func (a *App) noImagery(zoom int) error {
	_, err := fmt.Fprintf(a.out, "No imagery available at zoom level %d\n", zoom)
	return err
}

// Availability aggregates a region and shows it as a menu or GeoJSON
func (a *App) Availability(ctx context.Context, req AvailabilityRequest) error {
	res, err := a.aggregate(ctx, req)
	if err != nil {
		return err
	}
	if res.Empty() {
		return a.noImagery(req.Zoom)
	}
	if req.GeoJSON {
		return render.WriteGeoJSON(a.out, res, tileSystem(req.Provider), a.unioner)
	}

	title := fmt.Sprintf("%s imagery at zoom %d", req.Provider.DisplayName(), req.Zoom)
	return menu.Browse(ctx, a.selector, title, menu.OptionsFor(res, a.selector), a.out)
}

// Info lists the capture dates of the tile under one location
func (a *App) Info(ctx context.Context, kind common.ProviderKind, zoom int, p orb.Point) error {
	r, err := region.AroundPoint(p)
	if err != nil {
		return err
	}
	res, err := a.aggregate(ctx, AvailabilityRequest{Provider: kind, Zoom: zoom, Region: r, Concurrency: 1})
	if err != nil {
		return err
	}
	if res.Empty() {
		return a.noImagery(zoom)
	}

	tile := res.TileAt(0, 0)
	fmt.Fprintf(a.out, "%s tile %s at %.6f,%.6f\n", kind.DisplayName(), tile, p[1], p[0])
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	for _, g := range res.Groups {
		for _, grid := range g.Grids {
			if g.Layer != nil {
				fmt.Fprintf(w, "%s\t%s\n", common.FormatISO8601(grid.Date()), g.Layer.Title)
			} else {
				fmt.Fprintf(w, "%s\n", common.FormatISO8601(grid.Date()))
			}
		}
	}
	return w.Flush()
}

// Layers lists the Wayback releases, newest first
func (a *App) Layers(ctx context.Context) error {
	layers, err := a.catalog.GetLayers(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", common.DisplayNameEsriWayback, err)
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tTITLE")
	for _, l := range layers {
		fmt.Fprintf(w, "%d\t%s\t%s\n", l.ID, common.FormatISO8601(l.Date), l.Title)
	}
	return w.Flush()
}
