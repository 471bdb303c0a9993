package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobscraper/internal/config"
	"github.com/JakeFAU/jobscraper/internal/jobs"
	"github.com/JakeFAU/jobscraper/internal/pipeline"
)

type scrapeFlags struct {
	keywords []string
	out      string
	prefix   string
	format   string
	noPlot   bool
}

func newScrapeCmd() *cobra.Command {
	flags := &scrapeFlags{}
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Fetch, filter and store one batch of job postings",
		Long: `Fetches the listing API once, drops postings with unreadable dates, keeps
those whose position matches a keyword, merges new urls into
{out}/{prefix}_master.csv and writes {out}/{prefix}_YYYYMMDD.{ext}.
Flags override configuration values.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScrape(cmd, flags)
		},
	}
	cmd.Flags().StringSliceVarP(&flags.keywords, "keywords", "k", nil, "keywords to match in the position (comma-separated or repeated)")
	cmd.Flags().StringVarP(&flags.out, "out", "o", "", "output directory")
	cmd.Flags().StringVarP(&flags.prefix, "prefix", "p", "", "output file prefix")
	cmd.Flags().StringVar(&flags.format, "format", "", "snapshot format: csv, parquet or json")
	cmd.Flags().BoolVar(&flags.noPlot, "no-plot", false, "skip the jobs-per-day chart")
	return cmd
}

func runScrape(cmd *cobra.Command, flags *scrapeFlags) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	opts, err := scrapeOptions(appInstance.Config(), cmd, flags)
	if err != nil {
		return err
	}

	summary, err := appInstance.Runner().Run(cmd.Context(), opts)
	if err != nil {
		return err
	}
	appInstance.Logger().Debug("Run summary", zap.Any("summary", summary))
	fmt.Fprintf(cmd.OutOrStdout(), "%d new of %d matched, master holds %d, snapshot %s\n",
		summary.Appended, summary.Unique, summary.MasterTotal, summary.SnapshotPath)
	return nil
}

// scrapeOptions layers explicitly set flags over configuration.
func scrapeOptions(cfg config.Config, cmd *cobra.Command, flags *scrapeFlags) (pipeline.Options, error) {
	opts := pipeline.Options{
		Keywords: cfg.Keywords,
		OutDir:   cfg.Output.Dir,
		Prefix:   cfg.Output.Prefix,
		Plot:     !flags.noPlot,
	}
	format := cfg.Output.Format
	if cmd.Flags().Changed("keywords") {
		opts.Keywords = flags.keywords
	}
	if cmd.Flags().Changed("out") {
		opts.OutDir = flags.out
	}
	if cmd.Flags().Changed("prefix") {
		if err := config.ValidatePrefix(flags.prefix); err != nil {
			return pipeline.Options{}, err
		}
		opts.Prefix = flags.prefix
	}
	if cmd.Flags().Changed("format") {
		format = flags.format
	}
	parsed, err := jobs.ParseFormat(format)
	if err != nil {
		return pipeline.Options{}, err
	}
	opts.Format = parsed
	return opts, nil
}
