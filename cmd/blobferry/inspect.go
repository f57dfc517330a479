package main

import (
	"fmt"

	"github.com/HVLAB-SJ/hv-lab-app-sub002/blob"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/docstore"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/migrate"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/record"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/storage"
	"github.com/spf13/cobra"
)

func newInspectCmd(g *globalFlags) *cobra.Command {
	var kindName, id string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Classify one record's fields and show its size before and after a rewrite",
		Long: `inspect reads one record from the source and reports how every string
value classifies, the encoded document size as read, and the size after a
rewrite against an in-memory bucket. Nothing is uploaded or written.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id is required")
			}
			a, err := newApp(g.configPath, overrides{dryRun: true, logLevel: g.logLevel})
			if err != nil {
				return err
			}
			defer a.close()

			kind, err := a.kind(kindName)
			if err != nil {
				return err
			}
			src, err := a.source()
			if err != nil {
				return err
			}
			rec, err := src.Read(cmd.Context(), kind, record.Key(id))
			if err != nil {
				return err
			}

			cfg := a.cfg.Migration
			titleColor.Printf("%s %s\n", kind.Name, id)
			for _, s := range migrate.Inspect(rec, cfg.Threshold) {
				c := dataColor
				if s.Class == blob.ClassInlineBlob {
					c = warnColor
				}
				fieldColor.Printf("  %-28s ", s.Site)
				c.Printf("%-13s %d chars\n", s.Class, s.Length)
			}

			before, err := docstore.Size(rec)
			if err != nil {
				return err
			}
			rw, err := migrate.NewRewriter(migrate.RewriterConfig{
				Uploader:  storage.NewMemory(),
				Bucket:    dryRunBucket,
				Threshold: cfg.Threshold,
				Timeout:   cfg.Timeout,
				Logger:    a.logger,
			})
			if err != nil {
				return err
			}
			out, err := rw.Rewrite(cmd.Context(), kind, rec)
			if err != nil {
				return err
			}
			after, err := docstore.Size(out.Record)
			if err != nil {
				return err
			}

			fmt.Println()
			dataColor.Printf("  size as read:     %d bytes\n", before)
			dataColor.Printf("  size rewritten:   %d bytes (%d blob(s) externalized)\n", after, out.Uploaded)
			if after > cfg.Budget {
				errorColor.Printf("  over the %d byte budget even after rewriting\n", cfg.Budget)
			} else {
				successColor.Printf("  fits the %d byte budget\n", cfg.Budget)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kindName, "kind", "", "Entity kind, e.g. specbook_item")
	cmd.Flags().StringVar(&id, "id", "", "Key of the record to inspect")
	return cmd
}
