package metadata

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chromedp/chromedp"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/tphakala/radiotracker/internal/errors"
	"github.com/tphakala/radiotracker/internal/logger"
	"github.com/tphakala/radiotracker/internal/observability/metrics"
)

const bytesPerMB = 1024 * 1024

// BrowserConfig configures the shared headless browser
type BrowserConfig struct {
	ChromePath    string
	Headless      bool
	MemoryLimitMB int
	UserAgent     string
}

// Browser is a lazily started headless Chrome shared by page scrapes. Each
// Acquire opens its own tab. The owner must call Close on shutdown.
type Browser struct {
	cfg     BrowserConfig
	metrics *metrics.BrowserMetrics

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	closed        bool

	inFlight atomic.Int32
}

// NewBrowser returns a browser that is started on first use
func NewBrowser(cfg BrowserConfig, m *metrics.BrowserMetrics) *Browser {
	return &Browser{cfg: cfg, metrics: m}
}

// Acquire opens a new tab and returns its context. The tab inherits the
// caller's deadline and is closed by release or when ctx is cancelled.
func (b *Browser) Acquire(ctx context.Context) (context.Context, func(), error) {
	browserCtx, err := b.reserveTab(ctx)
	if err != nil {
		return nil, nil, err
	}
	b.metrics.TabOpened(1)

	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	stop := context.AfterFunc(ctx, tabCancel)

	var once sync.Once
	release := func() {
		once.Do(func() {
			stop()
			tabCancel()
			b.inFlight.Add(-1)
			b.metrics.TabOpened(-1)
		})
	}

	// The first Run creates the target; it must not carry a deadline or the
	// tab would be torn down with it.
	if err := chromedp.Run(tabCtx); err != nil {
		release()
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, browserError(err, "open_tab")
	}

	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		tabCtx, cancel = context.WithDeadline(tabCtx, deadline)
		inner := release
		release = func() {
			cancel()
			inner()
		}
	}

	return tabCtx, release, nil
}

// InFlight reports how many tabs are currently open
func (b *Browser) InFlight() int {
	return int(b.inFlight.Load())
}

// Close shuts the browser down. Further Acquire calls fail.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.stopLocked()
	return nil
}

// reserveTab starts the browser if needed and counts a tab against it. The
// count is taken under mu so a concurrent caller never recycles a browser
// that is about to open a tab.
func (b *Browser) reserveTab(ctx context.Context) (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, browserError(fmt.Errorf("browser is closed"), "acquire")
	}

	if b.browserCtx != nil && b.inFlight.Load() == 0 && b.overMemoryLimitLocked() {
		GetLogger().Info("recycling headless browser",
			logger.Int("memory_limit_mb", b.cfg.MemoryLimitMB))
		b.stopLocked()
		b.metrics.RecordRecycle("memory")
	}

	if b.browserCtx != nil {
		if b.browserCtx.Err() == nil {
			b.inFlight.Add(1)
			return b.browserCtx, nil
		}
		// Chrome exited underneath us
		b.stopLocked()
		b.metrics.RecordRecycle("crashed")
	}

	if err := b.startLocked(ctx); err != nil {
		return nil, err
	}
	b.inFlight.Add(1)
	return b.browserCtx, nil
}

func (b *Browser) startLocked(ctx context.Context) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.cfg.Headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("mute-audio", true),
	)
	if b.cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ChromePath))
	}
	if b.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Startup is abandoned if the caller gives up, but the browser itself
	// outlives the caller's context.
	stop := context.AfterFunc(ctx, browserCancel)
	err := chromedp.Run(browserCtx)
	stop()
	if err != nil {
		browserCancel()
		allocCancel()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return browserError(err, "start")
	}

	b.allocCancel = allocCancel
	b.browserCtx = browserCtx
	b.browserCancel = browserCancel
	b.metrics.RecordStart()
	GetLogger().Info("headless browser started",
		logger.Bool("headless", b.cfg.Headless),
		logger.String("chrome_path", b.cfg.ChromePath))
	return nil
}

func (b *Browser) stopLocked() {
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.browserCtx = nil
	b.browserCancel = nil
	b.allocCancel = nil
	b.metrics.SetRSS(0)
}

// overMemoryLimitLocked samples the RSS of Chrome and its child processes
func (b *Browser) overMemoryLimitLocked() bool {
	if b.cfg.MemoryLimitMB <= 0 {
		return false
	}
	rss, err := b.rssLocked()
	if err != nil {
		GetLogger().Debug("failed to sample browser memory", logger.Error(err))
		return false
	}
	b.metrics.SetRSS(rss)
	return rss > uint64(b.cfg.MemoryLimitMB)*bytesPerMB
}

func (b *Browser) rssLocked() (uint64, error) {
	c := chromedp.FromContext(b.browserCtx)
	if c == nil || c.Browser == nil || c.Browser.Process() == nil {
		return 0, fmt.Errorf("browser process unavailable")
	}

	proc, err := process.NewProcess(int32(c.Browser.Process().Pid)) //nolint:gosec // pids fit in int32
	if err != nil {
		return 0, fmt.Errorf("failed to get browser process: %w", err)
	}
	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return 0, fmt.Errorf("failed to get browser memory info: %w", err)
	}

	total := memInfo.RSS
	children, err := proc.Children()
	if err != nil {
		// No children is reported as an error by gopsutil
		return total, nil
	}
	for _, child := range children {
		if mi, err := child.MemoryInfo(); err == nil {
			total += mi.RSS
		}
	}
	return total, nil
}

func browserError(err error, operation string) error {
	return errors.New(err).
		Component("metadata").
		Category(errors.CategoryBrowser).
		Context("operation", operation).
		Build()
}
