package esri

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"historical-imagery/internal/common"
	"historical-imagery/internal/ratelimit"
)

const (
	// WayBack WMTS capabilities URL
	WayBackCapabilitiesURL = "https://wayback.maptiles.arcgis.com/arcgis/rest/services/world_imagery/mapserver/wmts/1.0.0/wmtscapabilities.xml"

	// User agent
	UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"

	// maxPages bounds paging through one metadata query
	maxPages = 50
)

// Layer represents an Esri World Imagery Wayback layer
type Layer struct {
	ID          int
	Title       string
	Date        time.Time
	Identifier  string
	Format      string
	ResourceURL string
	MatrixSets  []string
}

// Client handles communication with Esri World Imagery Wayback
type Client struct {
	httpClient      *http.Client
	limiter         *ratelimit.Handler
	capabilitiesURL string
	metadataBaseURL string

	mu          sync.Mutex
	layers      map[int]*Layer
	layerList   []*Layer // Ordered by date (newest first)
	initialized bool
}

// Option configures a Client
type Option func(*Client)

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRateLimit paces requests through h
func WithRateLimit(h *ratelimit.Handler) Option {
	return func(c *Client) { c.limiter = h }
}

// WithCapabilitiesURL overrides the WMTS capabilities document location
func WithCapabilitiesURL(u string) Option {
	return func(c *Client) { c.capabilitiesURL = u }
}

// WithMetadataBaseURL overrides the metadata host derived from each layer's
// resource URL. The base must end before "/World_Imagery".
func WithMetadataBaseURL(u string) Option {
	return func(c *Client) { c.metadataBaseURL = strings.TrimSuffix(u, "/") }
}

// NewClient creates a new Esri Wayback client with system proxy support
func NewClient(opts ...Option) *Client {
	// Use http.ProxyFromEnvironment to respect system proxy settings
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		capabilitiesURL: WayBackCapabilitiesURL,
		layers:          make(map[int]*Layer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get fetches u and returns the body of a 200 response
func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	if err := c.limiter.Wait(ctx, common.ProviderEsriWayback); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.limiter.CheckResponse(common.ProviderEsriWayback, resp); err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed with status: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Initialize fetches the WMTS capabilities and parses available layers
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}

	data, err := c.get(ctx, c.capabilitiesURL)
	if err != nil {
		return fmt.Errorf("failed to fetch capabilities: %w", err)
	}

	layers, err := parseCapabilities(data)
	if err != nil {
		return fmt.Errorf("failed to parse capabilities: %w", err)
	}

	// newest release first
	slices.SortStableFunc(layers, func(a, b *Layer) int {
		return b.Date.Compare(a.Date)
	})
	for _, layer := range layers {
		c.layers[layer.ID] = layer
	}
	c.layerList = layers
	log.Printf("[Wayback] Loaded %d layers", len(layers))

	c.initialized = true
	return nil
}

// GetLayers returns all available layers ordered by date (newest first)
func (c *Client) GetLayers(ctx context.Context) ([]*Layer, error) {
	if err := c.Initialize(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.layerList), nil
}

// GetLayerByID returns a specific layer
func (c *Client) GetLayerByID(ctx context.Context, id int) (*Layer, error) {
	if err := c.Initialize(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	layer, ok := c.layers[id]
	if !ok {
		return nil, fmt.Errorf("layer %d not found", id)
	}
	return layer, nil
}

// metadataResponse is an ArcGIS MapServer query result
type metadataResponse struct {
	Features []struct {
		Attributes struct {
			SrcDate2 int64 `json:"SRC_DATE2"`
		} `json:"attributes"`
		Geometry struct {
			Rings [][][2]float64 `json:"rings"`
		} `json:"geometry"`
	} `json:"features"`
	ExceededTransferLimit bool `json:"exceededTransferLimit"`
	Error                 *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// DateRegions returns the capture dates of layer inside the [lon, lat] bound,
// with their footprints, newest first
func (c *Client) DateRegions(ctx context.Context, layer *Layer, bound orb.Bound, level int) ([]*DateRegion, error) {
	base := c.metadataQueryURL(layer, level)
	if base == "" {
		return nil, fmt.Errorf("layer %d has no metadata service", layer.ID)
	}

	byDate := make(map[time.Time]*DateRegion)
	for _, env := range Envelopes(bound) {
		for offset, page := 0, 0; page < maxPages; page++ {
			resp, err := c.queryMetadata(ctx, base, env, offset)
			if err != nil {
				return nil, err
			}
			for _, f := range resp.Features {
				if f.Attributes.SrcDate2 <= 0 || len(f.Geometry.Rings) == 0 {
					continue
				}
				date := common.Day(time.UnixMilli(f.Attributes.SrcDate2))
				region, ok := byDate[date]
				if !ok {
					region = &DateRegion{Date: date}
					byDate[date] = region
				}
				region.addFeature(f.Geometry.Rings)
			}
			if !resp.ExceededTransferLimit || len(resp.Features) == 0 {
				break
			}
			offset += len(resp.Features)
		}
	}

	regions := make([]*DateRegion, 0, len(byDate))
	for _, r := range byDate {
		regions = append(regions, r)
	}
	slices.SortFunc(regions, func(a, b *DateRegion) int {
		return b.Date.Compare(a.Date)
	})
	log.Printf("[Wayback] %s: %d capture dates", layer.Title, len(regions))
	return regions, nil
}

func (c *Client) queryMetadata(ctx context.Context, base string, env orb.Bound, offset int) (*metadataResponse, error) {
	q := url.Values{}
	q.Set("f", "json")
	q.Set("where", "1=1")
	q.Set("outFields", "SRC_DATE2")
	q.Set("returnGeometry", "true")
	q.Set("geometryType", "esriGeometryEnvelope")
	q.Set("spatialRel", "esriSpatialRelIntersects")
	q.Set("inSR", strconv.Itoa(EpsgNumber))
	q.Set("outSR", strconv.Itoa(EpsgNumber))
	q.Set("geometry", fmt.Sprintf(`{"xmin":%f,"ymin":%f,"xmax":%f,"ymax":%f,"spatialReference":{"wkid":%d}}`,
		env.Min[0], env.Min[1], env.Max[0], env.Max[1], EpsgNumber))
	if offset > 0 {
		q.Set("resultOffset", strconv.Itoa(offset))
	}

	data, err := c.get(ctx, base+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to query metadata: %w", err)
	}

	var resp metadataResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("metadata service error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	return &resp, nil
}

func (c *Client) metadataQueryURL(layer *Layer, level int) string {
	if c.metadataBaseURL == "" {
		return layer.MetadataQueryURL(level)
	}
	return fmt.Sprintf("%s/World_Imagery_Metadata%s/MapServer/%d/query",
		c.metadataBaseURL, layer.metadataSuffix(), metadataScale(level))
}

// metadataScale maps a tile level to the metadata service's sublayer
func metadataScale(level int) int {
	return max(0, min(13, 23-level))
}

func (l *Layer) metadataSuffix() string {
	// Get identifier suffix (remove "WB" prefix)
	return strings.ToLower(strings.Replace(l.Identifier, "WB", "", 1))
}

// MetadataQueryURL returns the metadata MapServer query endpoint for level
func (l *Layer) MetadataQueryURL(level int) string {
	const keyText = "/World_Imagery"
	if !strings.Contains(l.ResourceURL, keyText) {
		return ""
	}

	// Get metadata service URL
	resourceStart := strings.Index(l.ResourceURL, "//") + 2
	resourceEnd := strings.Index(l.ResourceURL[resourceStart:], ".") + resourceStart
	newDomain := l.ResourceURL[:resourceStart] + "metadata" + l.ResourceURL[resourceEnd:]
	metaIdx := strings.Index(newDomain, keyText)
	base := newDomain[:metaIdx+len(keyText)]

	return fmt.Sprintf("%s_Metadata%s/MapServer/%d/query", base, l.metadataSuffix(), metadataScale(level))
}

// WMTS Capabilities XML structures
type wmtsCapabilities struct {
	XMLName  xml.Name `xml:"Capabilities"`
	Contents struct {
		Layers []wmtsLayer `xml:"Layer"`
	} `xml:"Contents"`
}

type wmtsLayer struct {
	Title       string `xml:"Title"`
	Identifier  string `xml:"Identifier"`
	Format      string `xml:"Format"`
	ResourceURL struct {
		Template string `xml:"template,attr"`
	} `xml:"ResourceURL"`
	TileMatrixSetLinks []struct {
		TileMatrixSet string `xml:"TileMatrixSet"`
	} `xml:"TileMatrixSetLink"`
}

func parseCapabilities(data []byte) ([]*Layer, error) {
	var caps wmtsCapabilities
	if err := xml.Unmarshal(data, &caps); err != nil {
		return nil, err
	}

	var layers []*Layer
	for _, l := range caps.Contents.Layers {
		layer, err := parseLayer(l)
		if err != nil {
			log.Printf("[Wayback] Skipping layer: %v", err)
			continue
		}
		layers = append(layers, layer)
	}

	return layers, nil
}

func parseLayer(l wmtsLayer) (*Layer, error) {
	// Parse date from title: "World Imagery (Wayback 2023-01-15)"
	const keyText = "(Wayback "
	idx := strings.Index(l.Title, keyText)
	if idx == -1 {
		return nil, fmt.Errorf("could not parse date from title: %s", l.Title)
	}

	dateStart := idx + len(keyText)
	dateEnd := strings.Index(l.Title[dateStart:], ")")
	if dateEnd == -1 {
		return nil, fmt.Errorf("could not parse date from title: %s", l.Title)
	}

	dateStr := l.Title[dateStart : dateStart+dateEnd]
	date, err := common.ParseISO8601(dateStr)
	if err != nil {
		return nil, fmt.Errorf("could not parse date %s: %w", dateStr, err)
	}

	id, err := parseIDFromURL(l.ResourceURL.Template)
	if err != nil {
		return nil, err
	}

	var matrixSets []string
	for _, link := range l.TileMatrixSetLinks {
		matrixSets = append(matrixSets, link.TileMatrixSet)
	}

	return &Layer{
		ID:          id,
		Title:       l.Title,
		Date:        date,
		Identifier:  l.Identifier,
		Format:      l.Format,
		ResourceURL: l.ResourceURL.Template,
		MatrixSets:  matrixSets,
	}, nil
}

func parseIDFromURL(resourceURL string) (int, error) {
	const keyText = "/MapServer/tile/"
	idx := strings.Index(resourceURL, keyText)
	if idx == -1 {
		return 0, fmt.Errorf("could not find MapServer in URL")
	}

	start := idx + len(keyText)
	end := strings.Index(resourceURL[start:], "/")
	if end == -1 {
		return 0, fmt.Errorf("could not parse ID from URL")
	}

	idStr := resourceURL[start : start+end]
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return 0, fmt.Errorf("could not parse ID %s: %w", idStr, err)
	}

	return id, nil
}
