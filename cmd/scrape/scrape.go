// Package scrape runs a single metadata extraction and prints the result.
// Nothing is written to the database.
package scrape

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/radiotracker/internal/classifier"
	"github.com/tphakala/radiotracker/internal/conf"
	"github.com/tphakala/radiotracker/internal/datastore"
	"github.com/tphakala/radiotracker/internal/errors"
	"github.com/tphakala/radiotracker/internal/metadata"
	"github.com/tphakala/radiotracker/internal/songmeta"
)

// Options describe an ad-hoc source when no station slug is given.
type Options struct {
	Type       string
	URL        string
	SourceSlug string
	SourceID   int64
	Name       string
}

// Command creates the scrape command.
func Command() *cobra.Command {
	var opts Options

	cmd := &cobra.Command{
		Use:   "scrape [station-slug]",
		Short: "Run one extraction and print what is playing",
		Long: "Extract the now-playing track for a stored station, or for an ad-hoc source " +
			"given with --type and --url/--slug/--id. Nothing is recorded.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := conf.GetSettings()

			var (
				src   metadata.Source
				mtype datastore.MetadataType
				err   error
			)
			if len(args) == 1 {
				src, mtype, err = stationSource(cmd.Context(), settings, args[0])
			} else {
				src, mtype, err = adHocSource(opts)
			}
			if err != nil {
				return err
			}

			registry := metadata.NewDefaultRegistry(settings, nil)
			defer func() { _ = registry.Close() }()

			return Run(cmd.Context(), registry, classifier.New(settings.Classifier.Aliases),
				mtype, src, settings.Scraper.Timeout, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "", "Metadata type: icy, page-scrape or json-api")
	cmd.Flags().StringVar(&opts.URL, "url", "", "Stream URL (icy)")
	cmd.Flags().StringVar(&opts.SourceSlug, "slug", "", "Upstream station slug (page-scrape)")
	cmd.Flags().Int64Var(&opts.SourceID, "id", 0, "Upstream station id (json-api)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "Station name used for show detection")

	return cmd
}

// stationSource looks a stored station up by slug.
func stationSource(ctx context.Context, settings *conf.Settings, slug string) (metadata.Source, datastore.MetadataType, error) {
	ds, err := datastore.New(settings)
	if err != nil {
		return metadata.Source{}, "", err
	}
	if err := ds.Open(); err != nil {
		return metadata.Source{}, "", err
	}
	defer func() { _ = ds.Close() }()

	station, err := ds.GetStationBySlug(ctx, slug)
	if err != nil {
		return metadata.Source{}, "", err
	}
	return metadata.SourceFromStation(station), station.MetadataType, nil
}

// adHocSource validates the flag-built source.
func adHocSource(opts Options) (metadata.Source, datastore.MetadataType, error) {
	mtype := datastore.MetadataType(opts.Type)
	if !mtype.Valid() {
		return metadata.Source{}, "", errors.Newf("unknown metadata type %q, pass a station slug or --type", opts.Type).
			Component("scrape").
			Category(errors.CategoryValidation).
			Build()
	}

	src := metadata.Source{
		StationSlug: "adhoc",
		StationName: opts.Name,
		StreamURL:   opts.URL,
		SourceSlug:  opts.SourceSlug,
		SourceID:    opts.SourceID,
	}

	var missing string
	switch mtype {
	case datastore.MetadataTypeICY:
		if src.StreamURL == "" {
			missing = "--url"
		}
	case datastore.MetadataTypePageScrape:
		if src.SourceSlug == "" {
			missing = "--slug"
		}
	case datastore.MetadataTypeJSONAPI:
		if src.SourceID <= 0 {
			missing = "--id"
		}
	}
	if missing != "" {
		return metadata.Source{}, "", errors.Newf("%s is required for %s sources", missing, mtype).
			Component("scrape").
			Category(errors.CategoryValidation).
			Build()
	}
	return src, mtype, nil
}

// Run extracts once from src and prints the parsed and classified result to out.
func Run(ctx context.Context, registry *metadata.Registry, cls *classifier.Classifier, mtype datastore.MetadataType, src metadata.Source, timeout time.Duration, out io.Writer) error {
	extractor, err := registry.For(mtype)
	if err != nil {
		return err
	}

	if timeout <= 0 {
		timeout = metadata.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res, err := extractor.Extract(ctx, src)
	if err != nil {
		return err
	}
	return printResult(out, cls, mtype, src, res, time.Since(start))
}

func printResult(out io.Writer, cls *classifier.Classifier, mtype datastore.MetadataType, src metadata.Source, res *metadata.Result, elapsed time.Duration) error {
	w := &errWriter{w: out}
	w.printf("type:       %s\n", mtype)
	w.printf("elapsed:    %s\n", elapsed.Round(time.Millisecond))

	if res.Empty {
		w.printf("result:     nothing playing\n")
		return w.err
	}

	artist, title := res.Artist, res.Title
	parsed := false
	if artist == "" && title == "" {
		p := songmeta.ParseRawMetadata(res.Raw)
		artist, title, parsed = p.Artist, p.Title, true
	}

	w.printf("raw:        %s\n", res.Raw)
	w.printf("artist:     %s\n", artist)
	w.printf("title:      %s\n", title)
	if parsed {
		w.printf("parsed:     from raw metadata\n")
	}
	w.printf("confidence: %.2f\n", res.Confidence)

	verdict := cls.Classify(artist, title, src.StationName)
	if verdict.IsShow {
		w.printf("non-song:   show (%.2f, %s)\n", verdict.Confidence, verdict.Reason)
	}
	return w.err
}

// errWriter keeps the first write error so printing code stays linear.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
