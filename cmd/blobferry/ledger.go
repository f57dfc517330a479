package main

import (
	"github.com/HVLAB-SJ/hv-lab-app-sub002/ledger"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/record"
	"github.com/spf13/cobra"
)

func newLedgerCmd(g *globalFlags) *cobra.Command {
	var kindName, key, pass string

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Show recorded outcomes",
		Long: `ledger lists the latest outcome of every item of a kind. With --key it
shows that item's full history, with --pass every outcome of one pass.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g.configPath, overrides{dryRun: true, logLevel: g.logLevel})
			if err != nil {
				return err
			}
			defer a.close()

			var entries []ledger.Entry
			switch {
			case pass != "":
				entries, err = a.ledger.Pass(pass)
			default:
				kind, kerr := a.kind(kindName)
				if kerr != nil {
					return kerr
				}
				if key != "" {
					entries, err = a.ledger.History(kind.Collection, record.Key(key))
				} else {
					entries, err = a.ledger.Latest(kind.Collection)
				}
			}
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				infoColor.Println("No outcomes recorded.")
				return nil
			}
			for _, e := range entries {
				printEntry(e)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kindName, "kind", "", "Entity kind, e.g. specbook_item")
	cmd.Flags().StringVar(&key, "key", "", "Show the history of one item")
	cmd.Flags().StringVar(&pass, "pass", "", "Show every outcome of one pass")
	return cmd
}

func printEntry(e ledger.Entry) {
	c := successColor
	switch {
	case e.State != "written":
		c = errorColor
	case e.Reason != "" || e.Fallback:
		c = warnColor
	}
	fieldColor.Printf("%-12s ", e.Key)
	c.Printf("%-14s %-14s ", e.State, e.Reason)
	dataColor.Printf("up=%d failed=%d %s pass=%s\n", e.BlobsUploaded, e.BlobsFailed, e.At.Format("2006-01-02 15:04:05"), e.PassID)
	if e.Error != "" {
		warnColor.Printf("             %s\n", e.Error)
	}
}
