package main

import (
	"context"
	"fmt"

	"github.com/HVLAB-SJ/hv-lab-app-sub002/ledger"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/migrate"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/record"
	"github.com/spf13/cobra"
)

type passFlags struct {
	kind    string
	dryRun  bool
	delayMS int
}

func (p *passFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.kind, "kind", "", "Entity kind to migrate, e.g. specbook_item")
	cmd.Flags().BoolVar(&p.dryRun, "dry-run", false, "Keep blobs in memory and write documents to the local store")
	cmd.Flags().IntVar(&p.delayMS, "delay", 0, "Milliseconds between items (50-2000), overrides the config")
}

func newRunCmd(g *globalFlags) *cobra.Command {
	pf := &passFlags{}
	var ids string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Migrate every record of a kind, or the given ids",
		Example: `  blobferry run --kind specbook_item
  blobferry run --kind specbook_item --ids 160,157,78 --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPass(cmd.Context(), g, pf, func(a *app, kind *record.Kind) ([]migrate.WorkItem, error) {
				if ids != "" {
					return migrate.Items(kind, record.ParseKeys(ids)), nil
				}
				src, err := a.source()
				if err != nil {
					return nil, err
				}
				keys, err := src.List(cmd.Context(), kind)
				if err != nil {
					return nil, fmt.Errorf("failed to list %s: %w", kind.Name, err)
				}
				return migrate.Items(kind, keys), nil
			})
		},
	}
	pf.bind(cmd)
	cmd.Flags().StringVar(&ids, "ids", "", "Comma separated keys to migrate instead of the full list")
	return cmd
}

func newRetryCmd(g *globalFlags) *cobra.Command {
	pf := &passFlags{}
	var reasons []string

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Re-run the items whose latest outcome matches the retry policy",
		Long: `retry reads the ledger and re-targets every item of the kind whose most
recent outcome carries one of the given reasons. By default these are
size_exceeded and upload.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			policy := migrate.DefaultRetryPolicy()
			if len(reasons) > 0 {
				policy.Retarget = nil
				for _, r := range reasons {
					policy.Retarget = append(policy.Retarget, migrate.Reason(r))
				}
			}
			return runPass(cmd.Context(), g, pf, func(a *app, kind *record.Kind) ([]migrate.WorkItem, error) {
				return migrate.Retargets(a.ledger, kind, policy)
			})
		},
	}
	pf.bind(cmd)
	cmd.Flags().StringSliceVar(&reasons, "reasons", nil, "Failure reasons to retarget (default size_exceeded,upload)")
	return cmd
}

type workFunc func(a *app, kind *record.Kind) ([]migrate.WorkItem, error)

func runPass(ctx context.Context, g *globalFlags, pf *passFlags, work workFunc) error {
	a, err := newApp(g.configPath, overrides{dryRun: pf.dryRun, delayMS: pf.delayMS, logLevel: g.logLevel})
	if err != nil {
		return err
	}
	defer a.close()

	kind, err := a.kind(pf.kind)
	if err != nil {
		return err
	}
	items, err := work(a, kind)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		infoColor.Println("Nothing to migrate.")
		return nil
	}

	src, err := a.source()
	if err != nil {
		return err
	}
	uploader, writer, bucket, err := a.sinks()
	if err != nil {
		return err
	}

	cfg := a.cfg.Migration
	rewriter, err := migrate.NewRewriter(migrate.RewriterConfig{
		Uploader:  uploader,
		Bucket:    bucket,
		Threshold: cfg.Threshold,
		Timeout:   cfg.Timeout,
		Logger:    a.logger,
	})
	if err != nil {
		return err
	}

	// Dry-run outcomes stay out of the ledger so they cannot mask what the
	// last real pass left to retry.
	var outcomes *ledger.Ledger
	if !cfg.DryRun {
		outcomes = a.ledger
	}

	t := newTally(len(items))
	driver, err := migrate.NewDriver(migrate.DriverConfig{
		Source:   src,
		Rewriter: rewriter,
		Writer:   writer,
		Ledger:   outcomes,
		PassID:   ledger.NewPassID(),
		Delay:    cfg.Delay,
		Timeout:  cfg.Timeout,
		OnItem:   t.item,
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}

	titleColor.Printf("Migrating %d %s item(s) to %s (pass %s)\n", len(items), kind.Name, kind.Collection, driver.PassID())
	report := driver.Run(ctx, items)
	t.summary(report)
	return nil
}
