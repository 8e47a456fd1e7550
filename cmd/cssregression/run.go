package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/cssregression/cssregression"
)

var (
	testThreshold int
	testFail      bool
	historyLimit  int
)

var referenceCmd = &cobra.Command{
	Use:   "reference [query]",
	Short: "Capture reference screenshots, overwriting existing ones",
	Long: `Capture reference screenshots for every entity the query selects.

A query is "site", "site/category" or "site/category/entity"; each segment
accepts globs and a single segment also matches entity names. No query
selects the whole catalog.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRunner(nil)
		if err != nil {
			return err
		}
		defer r.Close()
		rep, err := r.Reference(cmd.Context(), queryArg(args))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d reference screenshots captured, %d failed\n",
			rep.Capture.Captured, rep.Capture.Failed)
		return nil
	},
}

var testCmd = &cobra.Command{
	Use:   "test [query]",
	Short: "Capture test screenshots and compare them with the references",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var threshold *int
		if cmd.Flags().Changed("threshold") {
			threshold = &testThreshold
		}
		r, err := newRunner(threshold)
		if err != nil {
			return err
		}
		defer r.Close()
		rep, err := r.Test(cmd.Context(), queryArg(args))
		if err != nil {
			return err
		}
		if testFail && rep.HasFailures() {
			return errFailures
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		if cfg.Store.Path == "" {
			return errors.New("run history is disabled: set store.path or " + cssregression.EnvStorePath)
		}
		r, err := cssregression.New(cssregression.Options{Config: cfg, Logger: logger})
		if err != nil {
			return err
		}
		defer r.Close()

		runs, err := r.Store().ListRuns(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		printRuns(cmd, runs)
		return nil
	},
}

func init() {
	testCmd.Flags().IntVar(&testThreshold, "threshold", 0, "differing-pixel threshold for this run (overrides differenceThreshold)")
	testCmd.Flags().BoolVar(&testFail, "fail", false, "exit with code 2 when a case fails")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of runs to list")
}

func newRunner(threshold *int) (*cssregression.Runner, error) {
	cfg, logger, err := setup()
	if err != nil {
		return nil, err
	}
	return cssregression.New(cssregression.Options{
		Config:    cfg,
		Logger:    logger,
		Out:       os.Stdout,
		Progress:  os.Stderr,
		Threshold: threshold,
	})
}

func queryArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func printRuns(cmd *cobra.Command, runs []*cssregression.Run) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tQUERY\tSTATUS\tOK\tFAILED\tSTARTED")
	for _, r := range runs {
		q := r.Query
		if q == "" {
			q = "*"
		}
		started := time.UnixMilli(r.StartedAt).Format(time.DateTime)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n", r.ID, r.Kind, q, r.Status, r.OK, r.Failed, started)
	}
	w.Flush()
}
