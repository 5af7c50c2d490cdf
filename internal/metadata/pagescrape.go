package metadata

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/k3a/html2text"
	"golang.org/x/net/html"

	"github.com/tphakala/radiotracker/internal/datastore"
	"github.com/tphakala/radiotracker/internal/errors"
	"github.com/tphakala/radiotracker/internal/logger"
)

const pageScrapeConfidence = 0.9

// nowPlaying matches "Now playing <track> • <artist>" in rendered page text
var nowPlaying = regexp.MustCompile(`(?is)now\s+playing[:\s]*(.+?)\s*[•·]\s*(.+)`)

var whitespaceRun = regexp.MustCompile(`\s+`)

// PageScrapeConfig configures the page-scrape extractor
type PageScrapeConfig struct {
	URLTemplate string // fmt template with one %s verb for the station page slug
	Timeout     time.Duration
}

// PageScrapeExtractor renders a station page in the shared browser and reads
// the now-playing line from its visible text.
type PageScrapeExtractor struct {
	browser     *Browser
	urlTemplate string
	timeout     time.Duration
}

// NewPageScrapeExtractor creates a page-scrape extractor that owns browser
func NewPageScrapeExtractor(cfg PageScrapeConfig, browser *Browser) *PageScrapeExtractor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &PageScrapeExtractor{
		browser:     browser,
		urlTemplate: cfg.URLTemplate,
		timeout:     timeout,
	}
}

// Type implements Extractor
func (e *PageScrapeExtractor) Type() datastore.MetadataType {
	return datastore.MetadataTypePageScrape
}

// Close shuts down the shared browser
func (e *PageScrapeExtractor) Close() error {
	return e.browser.Close()
}

// Extract implements Extractor
func (e *PageScrapeExtractor) Extract(ctx context.Context, src Source) (*Result, error) {
	if src.SourceSlug == "" {
		return nil, errors.New(fmt.Errorf("station %q has no page slug", src.StationSlug)).
			Component("metadata").
			Category(errors.CategoryValidation).
			StationContext(src.StationSlug, string(e.Type())).
			Build()
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	tabCtx, release, err := e.browser.Acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, extractionError(ErrPageLoadTimeout, err, errors.CategoryTimeout, e.Type(), src)
		}
		return nil, err
	}
	defer release()

	url := fmt.Sprintf(e.urlTemplate, src.SourceSlug)
	if err := loadAndWaitIdle(tabCtx, url); err != nil {
		if tabCtx.Err() != nil || ctx.Err() != nil {
			return nil, extractionError(ErrPageLoadTimeout, err, errors.CategoryTimeout, e.Type(), src)
		}
		return nil, networkError(err, e.Type(), src, "navigate")
	}

	text, err := pageText(tabCtx)
	if err != nil {
		return nil, timeoutOr(ctx, err, e.Type(), src, "read_text")
	}

	track, artist, ok := matchNowPlaying(text)
	if !ok {
		GetLogger().Debug("no now-playing line on page",
			logger.String("station", src.StationSlug),
			logger.Int("text_length", len(text)))
		return nil, extractionError(ErrNoMatch, nil, errors.CategoryExtraction, e.Type(), src)
	}

	return &Result{
		Artist:     artist,
		Title:      track,
		Raw:        fmt.Sprintf("%s • %s", track, artist),
		Confidence: pageScrapeConfidence,
	}, nil
}

// loadAndWaitIdle navigates and blocks until Chrome reports networkIdle for
// the new document.
func loadAndWaitIdle(ctx context.Context, url string) error {
	idle := make(chan struct{})
	var (
		once  sync.Once
		mu    sync.Mutex
		armed bool
	)
	chromedp.ListenTarget(ctx, func(ev any) {
		e, ok := ev.(*page.EventLifecycleEvent)
		if !ok {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		switch e.Name {
		case "init":
			armed = true
		case "networkIdle":
			if armed {
				once.Do(func() { close(idle) })
			}
		}
	})

	if err := chromedp.Run(ctx,
		page.SetLifecycleEventsEnabled(true),
		chromedp.Navigate(url),
	); err != nil {
		return err
	}

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pageText returns the body's innerText, falling back to text rendered from
// the page HTML when innerText is empty.
func pageText(ctx context.Context) (string, error) {
	var text string
	if err := chromedp.Run(ctx,
		chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text),
	); err != nil {
		return "", err
	}
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	var outer string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &outer, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return VisibleText(outer), nil
}

// VisibleText renders HTML to plain text after dropping script, style and
// noscript elements.
func VisibleText(htmlStr string) string {
	doc, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return html2text.HTML2Text(htmlStr)
	}

	var strip func(*html.Node)
	strip = func(n *html.Node) {
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			if c.Type == html.ElementNode && isInvisible(c.Data) {
				n.RemoveChild(c)
			} else {
				strip(c)
			}
			c = next
		}
	}
	strip(doc)

	var b bytes.Buffer
	if err := html.Render(&b, doc); err != nil {
		return html2text.HTML2Text(htmlStr)
	}
	return html2text.HTML2Text(b.String())
}

func isInvisible(tag string) bool {
	switch tag {
	case "script", "style", "noscript", "template":
		return true
	}
	return false
}

// matchNowPlaying finds the now-playing line in visible page text and
// returns the track and a cleaned artist.
func matchNowPlaying(text string) (track, artist string, ok bool) {
	m := nowPlaying.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	track = collapse(m[1])
	artist = cleanArtist(m[2], track)
	if track == "" || artist == "" {
		return "", "", false
	}
	return track, artist, true
}

// cleanArtist keeps the first non-blank line and strips the track name when
// the page repeats it before or after the artist.
func cleanArtist(raw, track string) string {
	var line string
	for l := range strings.SplitSeq(raw, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	line = collapse(line)
	if track == "" {
		return line
	}

	if n := len(track); len(line) > n {
		switch {
		case strings.EqualFold(line[:n], track):
			line = line[n:]
		case strings.EqualFold(line[len(line)-n:], track):
			line = line[:len(line)-n]
		}
	}
	return strings.Trim(strings.TrimSpace(line), "-–—•·|: ")
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
