package metadata

import (
	"github.com/tphakala/radiotracker/internal/conf"
	"github.com/tphakala/radiotracker/internal/observability/metrics"
)

// NewDefaultRegistry wires the ICY, page-scrape and JSON API extractors from
// settings. The page-scrape browser is not started until first use.
func NewDefaultRegistry(settings *conf.Settings, browserMetrics *metrics.BrowserMetrics) *Registry {
	sc := settings.Scraper

	browser := NewBrowser(BrowserConfig{
		ChromePath:    sc.PageScrape.ChromePath,
		Headless:      sc.PageScrape.Headless,
		MemoryLimitMB: sc.PageScrape.MemoryLimitMB,
		UserAgent:     sc.UserAgent,
	}, browserMetrics)

	return NewRegistry(
		NewICYExtractor(ICYConfig{
			Timeout:            sc.ICY.Timeout,
			InsecureSkipVerify: sc.ICY.InsecureSkipVerify,
			UserAgent:          sc.UserAgent,
		}),
		NewPageScrapeExtractor(PageScrapeConfig{
			URLTemplate: sc.PageScrape.URLTemplate,
			Timeout:     sc.Timeout,
		}, browser),
		NewJSONAPIExtractor(JSONAPIConfig{
			URLTemplate: sc.JSONAPI.URLTemplate,
			Timeout:     sc.Timeout,
			RateLimit:   sc.JSONAPI.RateLimit,
			Burst:       sc.JSONAPI.Burst,
			UserAgent:   sc.UserAgent,
		}),
	)
}
