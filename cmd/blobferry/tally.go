package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/HVLAB-SJ/hv-lab-app-sub002/migrate"
	"github.com/fatih/color"
)

var (
	titleColor   = color.New(color.FgHiCyan, color.Bold)
	successColor = color.New(color.FgHiGreen)
	errorColor   = color.New(color.FgHiRed)
	infoColor    = color.New(color.FgHiYellow)
	dataColor    = color.New(color.FgHiWhite)
	fieldColor   = color.New(color.FgHiMagenta)
	warnColor    = color.New(color.FgYellow, color.Italic)
)

// tally prints one line per item as the driver reports it.
type tally struct {
	total int
	done  int
}

func newTally(total int) *tally {
	return &tally{total: total}
}

func (t *tally) item(res migrate.ItemResult) {
	t.done++
	progress := fmt.Sprintf("[%d/%d]", t.done, t.total)

	switch {
	case res.State == migrate.StateWritten && res.Fallback:
		warnColor.Printf("%s ~ %s written with placeholders (%d uploaded, %d left to the source)\n",
			progress, res.Key, res.BlobsUploaded, res.BlobsFailed)
	case res.State == migrate.StateWritten && res.Reason != migrate.ReasonNone:
		warnColor.Printf("%s ~ %s written, %d blob(s) left inline: %s\n", progress, res.Key, res.BlobsFailed, res.Reason)
	case res.State == migrate.StateWritten:
		successColor.Printf("%s ✓ %s (%d blob(s) uploaded)\n", progress, res.Key, res.BlobsUploaded)
	default:
		errorColor.Printf("%s ✗ %s %s: %v\n", progress, res.Key, res.Reason, res.Err)
	}
	for _, f := range res.Failures {
		fieldColor.Printf("      %s: %v\n", f.Site, f.Err)
	}
}

func (t *tally) summary(r *migrate.Report) {
	fmt.Println()
	titleColor.Println("Summary")
	successColor.Printf("  written:        %d\n", r.Success)
	errorColor.Printf("  failed:         %d\n", r.Failed)
	if r.NotAttempted > 0 {
		warnColor.Printf("  not attempted:  %d\n", r.NotAttempted)
	}
	dataColor.Printf("  blobs uploaded: %d\n", r.BlobsUploaded)
	dataColor.Printf("  blobs failed:   %d\n", r.BlobsFailed)
	dataColor.Printf("  elapsed:        %s\n", r.Finished.Sub(r.Started).Round(time.Millisecond))

	byReason := r.ByReason()
	if len(byReason) == 0 {
		return
	}
	reasons := make([]string, 0, len(byReason))
	for reason := range byReason {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)
	infoColor.Println("  by reason:")
	for _, reason := range reasons {
		fieldColor.Printf("    %-14s %d\n", reason, byReason[migrate.Reason(reason)])
	}
	if n := byReason[migrate.ReasonSizeExceeded] + byReason[migrate.ReasonUpload]; n > 0 {
		infoColor.Printf("  %d item(s) can be re-targeted with 'blobferry retry'\n", n)
	}
}
