package googleearth

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zlib"
	"google.golang.org/protobuf/encoding/protowire"

	"historical-imagery/internal/cache"
	"historical-imagery/internal/common"
	"historical-imagery/internal/ratelimit"
)

const (
	// TimeMachine database host
	TimeMachineBaseURL = "https://khmdb.google.com"

	dbRootPath = "/dbRoot.v5?db=tm&hl=en&gl=us&output=proto"
	packetPath = "/flatfile?db=tm&qp-%s-q.%d"

	// Compression magic numbers
	PacketMagic     = 0x7468dead
	PacketMagicSwap = 0xadde6874

	// maxPacketSize bounds the decompressed size a packet header may claim
	maxPacketSize = 64 << 20

	// User agent to mimic Google Earth Pro
	UserAgent = "GoogleEarth/7.3.6.10441(Macintosh;Mac OS X (26.2.0);en;kml:2.2;client:Pro;type:default)"
)

var errNoKey = errors.New("dbRoot has no encryption key")

// Client reads the Google Earth TimeMachine quadtree
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.Handler
	packets    *cache.PacketCache[*Packet]
	baseURL    string
	cacheSize  int

	mu          sync.Mutex
	key         []byte
	dbVersion   int
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

// WithPacketCacheSize bounds the number of decoded packets kept in memory
func WithPacketCacheSize(n int) Option {
	return func(c *Client) { c.cacheSize = n }
}

// WithBaseURL overrides the TimeMachine database host
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// NewClient creates a new TimeMachine client with system proxy support
func NewClient(opts ...Option) (*Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		baseURL:   TimeMachineBaseURL,
		cacheSize: cache.DefaultPacketCacheSize,
	}
	for _, opt := range opts {
		opt(c)
	}

	packets, err := cache.NewPacketCache[*Packet](c.cacheSize)
	if err != nil {
		return nil, err
	}
	c.packets = packets
	return c, nil
}

// get fetches u and returns the body of a 200 response
func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	if err := c.limiter.Wait(ctx, common.ProviderGoogleEarth); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.limiter.CheckResponse(common.ProviderGoogleEarth, resp); err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed with status: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/vnd.google-earth.kml+xml, application/vnd.google-earth.kmz, image/*, */*")
	req.Header.Set("Accept-Language", "en-US,*")
}

// Initialize fetches the TimeMachine dbRoot, which carries the packet
// encryption key and the quadtree version
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}

	data, err := c.get(ctx, c.baseURL+dbRootPath)
	if err != nil {
		return fmt.Errorf("failed to fetch TimeMachine dbRoot: %w", err)
	}

	key, version, err := parseDbRoot(data)
	if err != nil {
		return fmt.Errorf("failed to parse TimeMachine dbRoot: %w", err)
	}
	c.key = key
	c.dbVersion = max(version, 1)
	c.initialized = true

	log.Printf("[TimeMachine] Initialized (key length: %d, dbVersion: %d)", len(c.key), c.dbVersion)
	return nil
}

// DBVersion returns the quadtree version of the root packet
func (c *Client) DBVersion(ctx context.Context) (int, error) {
	if err := c.Initialize(ctx); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dbVersion, nil
}

func (c *Client) encryptionKey() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key
}

// parseDbRoot reads an EncryptedDbRootProto: field 2 is the encryption key,
// field 3 the encrypted and compressed DbRootProto
func parseDbRoot(data []byte) (key []byte, version int, err error) {
	var encrypted []byte
	err = eachField(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case 2:
			key = bytes.Clone(v)
		case 3:
			encrypted = bytes.Clone(v)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	if len(key) == 0 {
		return nil, 0, errNoKey
	}

	version = 1
	if encrypted != nil {
		decrypt(encrypted, key)
		body, err := decompress(encrypted)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to decompress dbRoot: %w", err)
		}
		if v := quadtreeVersion(body); v > 0 {
			version = v
		}
	}
	return key, version, nil
}

// quadtreeVersion reads database_version (field 13) and its quadtree_version
// (field 1) from a DbRootProto
func quadtreeVersion(data []byte) int {
	version := 0
	_ = eachField(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num != 13 || typ != protowire.BytesType {
			return nil
		}
		return eachField(v, func(num protowire.Number, typ protowire.Type, v []byte) error {
			if num == 1 {
				version = varint(typ, v)
			}
			return nil
		})
	})
	return version
}

// decrypt XOR decrypts data in place
func decrypt(data []byte, key []byte) {
	if len(key) == 0 {
		return
	}

	off := 16
	for j := range data {
		data[j] ^= key[off%len(key)]
		off++

		if off&7 == 0 {
			off += 16
		}
		if off >= len(key) {
			off = (off + 8) % 24
		}
	}
}

// decompress handles the Google Earth compression format. Data without the
// magic header is returned unchanged.
func decompress(data []byte) ([]byte, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("data too short for decompression")
	}

	var size uint32
	switch binary.LittleEndian.Uint32(data[:4]) {
	case PacketMagic:
		size = binary.LittleEndian.Uint32(data[4:8])
	case PacketMagicSwap:
		size = binary.BigEndian.Uint32(data[4:8])
	default:
		return data, nil
	}

	if size > maxPacketSize {
		return nil, fmt.Errorf("packet claims %d bytes, more than the %d byte limit", size, maxPacketSize)
	}

	reader, err := zlib.NewReader(bytes.NewReader(data[8:]))
	if err != nil {
		return nil, fmt.Errorf("failed to create zlib reader: %w", err)
	}
	defer reader.Close()

	result := make([]byte, size)
	if _, err := io.ReadFull(reader, result); err != nil {
		return nil, fmt.Errorf("failed to decompress: %w", err)
	}
	return result, nil
}

// fetchPacket downloads, decrypts and parses the packet at path
func (c *Client) fetchPacket(ctx context.Context, path string, epoch int) (*Packet, error) {
	key := fmt.Sprintf("%s@%d", path, epoch)
	return c.packets.GetOrFetch(key, func() (*Packet, error) {
		u := c.baseURL + fmt.Sprintf(packetPath, path, epoch)
		data, err := c.get(ctx, u)
		if err != nil {
			return nil, err
		}

		decrypt(data, c.encryptionKey())
		body, err := decompress(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress packet %s: %w", path, err)
		}
		packet, err := ParsePacket(body)
		if err != nil {
			return nil, fmt.Errorf("failed to parse packet %s: %w", path, err)
		}
		log.Printf("[TimeMachine] Packet %s epoch %d: %d nodes", path, packet.Epoch, len(packet.Nodes))
		return packet, nil
	})
}

// CacheStats reports the packet cache counters
func (c *Client) CacheStats() (entries int, hits, misses int64) {
	return c.packets.Stats()
}
