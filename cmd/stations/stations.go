// Package stations manages the station catalogue from the command line.
package stations

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/radiotracker/internal/conf"
	"github.com/tphakala/radiotracker/internal/datastore"
	"github.com/tphakala/radiotracker/internal/errors"
	"github.com/tphakala/radiotracker/internal/logger"
)

// Command creates the stations command and its subcommands.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stations",
		Short: "List, import and export the station catalogue",
	}

	cmd.AddCommand(listCommand(), importCommand(), exportCommand())
	return cmd
}

func listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored stations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ds datastore.Interface) error {
				return List(cmd.Context(), ds, cmd.OutOrStdout())
			})
		},
	}
}

func importCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Upsert the stations from the config file by slug",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ds datastore.Interface) error {
				n, err := Import(cmd.Context(), ds, conf.GetSettings().Stations)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d stations\n", n)
				return err
			})
		},
	}
}

func exportCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the stored stations as a YAML stations block",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ds datastore.Interface) error {
				out := cmd.OutOrStdout()
				if output != "" {
					f, err := os.Create(output)
					if err != nil {
						return errors.New(err).
							Component("stations").
							Category(errors.CategorySystem).
							Context("operation", "create_export_file").
							Build()
					}
					defer func() { _ = f.Close() }()
					out = f
				}
				return Export(cmd.Context(), ds, out)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	return cmd
}

// withStore opens the configured datastore for the duration of fn.
func withStore(fn func(ds datastore.Interface) error) error {
	ds, err := datastore.New(conf.GetSettings())
	if err != nil {
		return err
	}
	if err := ds.Open(); err != nil {
		return err
	}
	defer func() {
		if err := ds.Close(); err != nil {
			logger.Global().Module("stations").Warn("failed to close datastore", logger.Error(err))
		}
	}()
	return fn(ds)
}

// List prints every stored station as a table.
func List(ctx context.Context, ds datastore.Interface, out io.Writer) error {
	stations, err := ds.ListStations(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SLUG\tNAME\tTYPE\tACTIVE\tINTERVAL\tLAST SCRAPED")
	for i := range stations {
		st := &stations[i]
		interval := "default"
		if st.PollInterval > 0 {
			interval = (time.Duration(st.PollInterval) * time.Second).String()
		}
		last := "never"
		if st.LastScrapedAt != nil {
			last = st.LastScrapedAt.Local().Format(time.DateTime)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n",
			st.Slug, st.Name, st.MetadataType, st.Active, interval, last)
	}
	return w.Flush()
}

// Import upserts every configured station. Entries are checked before any
// write so a bad entry leaves the catalogue untouched.
func Import(ctx context.Context, ds datastore.Interface, configs []conf.StationConfig) (int, error) {
	stations := make([]*datastore.Station, 0, len(configs))
	for i := range configs {
		st := FromConfig(&configs[i])
		if st.Slug == "" || !st.MetadataType.Valid() {
			return 0, errors.Newf("stations[%d]: invalid slug %q or metadata type %q", i, st.Slug, st.MetadataType).
				Component("stations").
				Category(errors.CategoryValidation).
				Build()
		}
		stations = append(stations, st)
	}

	log := logger.Global().Module("stations")
	for _, st := range stations {
		if err := ds.UpsertStation(ctx, st); err != nil {
			return 0, err
		}
		log.Debug("station imported", logger.String("station", st.Slug), logger.Int64("id", int64(st.ID)))
	}
	return len(stations), nil
}

// exportDocument is the top-level YAML shape, ready to paste into config.yaml.
type exportDocument struct {
	Stations []conf.StationConfig `yaml:"stations"`
}

// Export writes every stored station as YAML.
func Export(ctx context.Context, ds datastore.Interface, out io.Writer) error {
	stations, err := ds.ListStations(ctx)
	if err != nil {
		return err
	}

	doc := exportDocument{Stations: make([]conf.StationConfig, 0, len(stations))}
	for i := range stations {
		doc.Stations = append(doc.Stations, ToConfig(&stations[i]))
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return errors.New(err).
			Component("stations").
			Category(errors.CategoryParsing).
			Context("operation", "encode_yaml").
			Build()
	}
	return enc.Close()
}

// FromConfig converts a catalogue entry into a station row.
func FromConfig(c *conf.StationConfig) *datastore.Station {
	return &datastore.Station{
		Slug:         c.Slug,
		Name:         c.Name,
		StreamURL:    c.StreamURL,
		MetadataType: datastore.MetadataType(c.MetadataType),
		SourceSlug:   c.SourceSlug,
		SourceID:     c.SourceID,
		PollInterval: c.PollInterval,
		Active:       c.IsActive(),
		Timezone:     c.Timezone,
	}
}

// ToConfig converts a station row into a catalogue entry. Active is only
// written out when false.
func ToConfig(st *datastore.Station) conf.StationConfig {
	c := conf.StationConfig{
		Slug:         st.Slug,
		Name:         st.Name,
		StreamURL:    st.StreamURL,
		MetadataType: string(st.MetadataType),
		SourceSlug:   st.SourceSlug,
		SourceID:     st.SourceID,
		PollInterval: st.PollInterval,
		Timezone:     st.Timezone,
	}
	if !st.Active {
		inactive := false
		c.Active = &inactive
	}
	return c
}
