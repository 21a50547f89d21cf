// Package cli contains the shelfdb command tree. Every command loads the data
// file, which compacts it, and then runs against the loaded books.
package cli

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/vinicius-lino-figueiredo/shelfdb"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/metrics"
	"github.com/vinicius-lino-figueiredo/shelfdb/internal/books"
	"github.com/vinicius-lino-figueiredo/shelfdb/internal/config"
	"github.com/vinicius-lino-figueiredo/shelfdb/internal/logging"
)

type app struct {
	cfg         config.Config
	noColor     bool
	showMetrics bool

	log      *slog.Logger
	registry *prometheus.Registry
	db       shelfdb.ShelfDB
	books    *books.Collection
	out      *printer
}

// NewRootCommand returns the shelfdb command. cfg holds the defaults of the
// persistent flags.
func NewRootCommand(cfg config.Config) *cobra.Command {
	a := &app{cfg: cfg}

	cmd := &cobra.Command{
		Use:               "shelfdb",
		Short:             "Embedded book database with indexes and aggregation pipelines",
		SilenceUsage:      true,
		PersistentPreRunE: a.open,
		PersistentPostRun: a.report,
	}

	f := cmd.PersistentFlags()
	f.StringVar(&a.cfg.Data.File, "data-file", cfg.Data.File, "data file, empty for an in-memory database")
	f.Float64Var(&a.cfg.Data.Threshold, "corrupt-threshold", cfg.Data.Threshold, "share of unreadable data file lines tolerated")
	f.StringVar(&a.cfg.Log.Level, "log-level", cfg.Log.Level, "DEBUG, INFO, WARN or ERROR")
	f.StringVar(&a.cfg.Log.Format, "log-format", cfg.Log.Format, "text or json")
	f.BoolVar(&a.cfg.Timestamps, "timestamps", cfg.Timestamps, "set createdAt and updatedAt on books")
	f.BoolVar(&a.noColor, "no-color", false, "disable colored output")
	f.BoolVar(&a.showMetrics, "metrics", false, "print query and mutation metrics after the command")

	cmd.AddCommand(
		a.seedCommand(),
		a.crudCommand(),
		a.queryCommand(),
		a.aggregateCommand(),
		a.indexCommand(),
		a.findCommand(),
		a.dropCommand(),
	)
	return cmd
}

func (a *app) open(cmd *cobra.Command, _ []string) error {
	a.cfg.Log.Level = strings.ToUpper(a.cfg.Log.Level)
	a.cfg.Log.Format = strings.ToLower(a.cfg.Log.Format)
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	a.out = newPrinter(cmd.OutOrStdout(), a.noColor)
	a.log = logging.New(cmd.ErrOrStderr(), a.cfg.Log.Level, a.cfg.Log.Format)
	a.registry = prometheus.NewRegistry()

	db, err := shelfdb.NewDB(
		shelfdb.WithFilename(a.cfg.Data.File),
		shelfdb.WithTimestamps(a.cfg.Timestamps),
		shelfdb.WithCorruptionThreshold(a.cfg.Data.Threshold),
		shelfdb.WithMetrics(metrics.NewMetrics(a.registry)),
		shelfdb.WithLogger(a.log),
	)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := db.LoadDatabase(ctx); err != nil {
		return fmt.Errorf("loading %q: %w", a.cfg.Data.File, err)
	}
	a.db = db

	a.books, err = books.Open(ctx, db)
	if err != nil {
		return err
	}
	a.log.Debug("database opened", slog.String("file", a.cfg.Data.File))
	return nil
}

func (a *app) report(_ *cobra.Command, _ []string) {
	if !a.showMetrics || a.registry == nil {
		return
	}
	families, err := a.registry.Gather()
	if err != nil {
		a.log.Warn("gathering metrics", slog.Any("error", err))
		return
	}

	var rows [][]string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			var value string
			switch {
			case m.GetCounter() != nil:
				value = fmt.Sprint(m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				value = fmt.Sprintf("%d observations", m.GetHistogram().GetSampleCount())
			default:
				continue
			}
			rows = append(rows, []string{mf.GetName(), strings.Join(labels, ","), value})
		}
	}
	slices.SortStableFunc(rows, func(x, y []string) int {
		return strings.Compare(x[0]+x[1], y[0]+y[1])
	})

	a.out.section("METRICS")
	a.out.table([]string{"metric", "labels", "value"}, rows)
}
