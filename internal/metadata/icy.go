package metadata

import (
	"bufio"
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/tphakala/radiotracker/internal/datastore"
	"github.com/tphakala/radiotracker/internal/errors"
	"github.com/tphakala/radiotracker/internal/httpclient"
	"github.com/tphakala/radiotracker/internal/logger"
	"github.com/tphakala/radiotracker/internal/songmeta"
)

// icyBlockUnit is the multiplier applied to the metadata length byte
const icyBlockUnit = 16

// streamTitle captures the StreamTitle value. Titles may contain apostrophes,
// so the value ends at "';" or at the end of the block.
var streamTitle = regexp.MustCompile(`(?s)StreamTitle='(.*?)'(?:;|\s*$)`)

// ICYConfig configures the ICY extractor
type ICYConfig struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
	UserAgent          string
}

// ICYExtractor reads one in-band metadata block from a SHOUTcast/Icecast stream
type ICYExtractor struct {
	client  *httpclient.Client
	timeout time.Duration
}

// NewICYExtractor creates an ICY extractor with its own streaming HTTP client
func NewICYExtractor(cfg ICYConfig) *ICYExtractor {
	httpCfg := httpclient.StreamConfig()
	httpCfg.InsecureSkipVerify = cfg.InsecureSkipVerify
	if cfg.UserAgent != "" {
		httpCfg.UserAgent = cfg.UserAgent
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ICYExtractor{
		client:  httpclient.New(&httpCfg),
		timeout: timeout,
	}
}

// Type implements Extractor
func (e *ICYExtractor) Type() datastore.MetadataType {
	return datastore.MetadataTypeICY
}

// Close releases idle connections
func (e *ICYExtractor) Close() error {
	e.client.Close()
	return nil
}

// Extract implements Extractor. The connection is dropped as soon as the
// first metadata block has been read.
func (e *ICYExtractor) Extract(ctx context.Context, src Source) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.Get(ctx, src.StreamURL, map[string]string{"Icy-MetaData": "1"})
	if err != nil {
		return nil, timeoutOr(ctx, err, e.Type(), src, "connect")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(fmt.Errorf("stream returned HTTP %d", resp.StatusCode)).
			Component("metadata").
			Category(errors.CategoryHTTP).
			StationContext(src.StationSlug, string(e.Type())).
			Context("status_code", resp.StatusCode).
			Build()
	}

	metaInt, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("icy-metaint")))
	if err != nil || metaInt <= 0 {
		return nil, extractionError(ErrUnsupportedProtocol,
			fmt.Errorf("missing or invalid icy-metaint %q", resp.Header.Get("icy-metaint")),
			errors.CategoryExtraction, e.Type(), src)
	}

	block, err := readMetadataBlock(bufio.NewReader(resp.Body), metaInt)
	if err != nil {
		return nil, timeoutOr(ctx, err, e.Type(), src, "read_stream")
	}
	if block == nil {
		GetLogger().Debug("ICY metadata block is empty", logger.String("station", src.StationSlug))
		return &Result{Empty: true}, nil
	}

	text := decodeBlock(block)
	title, ok := parseStreamTitle(text)
	if !ok {
		return nil, extractionError(ErrNoMatch, nil, errors.CategoryExtraction, e.Type(), src)
	}

	parsed := songmeta.ParseRawMetadata(title)
	return &Result{
		Artist:     parsed.Artist,
		Title:      parsed.Title,
		Raw:        text,
		Confidence: 1.0,
	}, nil
}

// readMetadataBlock skips metaInt audio bytes and returns the following
// metadata block. A nil block means the length byte was zero. Running out of
// stream before the block is complete is an error.
func readMetadataBlock(r *bufio.Reader, metaInt int) ([]byte, error) {
	if _, err := r.Discard(metaInt); err != nil {
		return nil, shortRead(err, "audio")
	}

	length, err := r.ReadByte()
	if err != nil {
		return nil, shortRead(err, "length byte")
	}
	if length == 0 {
		return nil, nil
	}

	block := make([]byte, int(length)*icyBlockUnit)
	if _, err := io.ReadFull(r, block); err != nil {
		return nil, shortRead(err, "metadata block")
	}
	return block, nil
}

func shortRead(err error, part string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("stream ended before %s: %w", part, io.ErrUnexpectedEOF)
	}
	return err
}

// decodeBlock strips NUL padding and decodes Latin-1 blocks that are not valid UTF-8
func decodeBlock(block []byte) string {
	trimmed := strings.TrimRight(string(block), "\x00")
	if utf8.ValidString(trimmed) {
		return trimmed
	}
	if decoded, err := charmap.ISO8859_1.NewDecoder().String(trimmed); err == nil {
		return decoded
	}
	return strings.ToValidUTF8(trimmed, "")
}

// parseStreamTitle returns the unescaped StreamTitle value if present and non-blank
func parseStreamTitle(text string) (string, bool) {
	m := streamTitle.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	title := strings.TrimSpace(html.UnescapeString(m[1]))
	return title, title != ""
}
