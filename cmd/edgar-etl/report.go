package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/akhil324/sec-edgar-filings/internal/pipeline"
	"github.com/akhil324/sec-edgar-filings/pkg/warehouse"
)

func newTable(out io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

// printSummary renders the per-shape results of a run
func printSummary(out io.Writer, s *pipeline.Summary) {
	fmt.Fprintf(out, "run %s (%s) %s\n", s.RunID, s.Kind, s.Archive)
	fmt.Fprintf(out, "records read: %d  skipped: %d  ignored members: %d  duration: %s\n",
		s.RecordsRead, s.RecordsSkipped, s.Ignored, s.Duration.Round(time.Millisecond))

	table := newTable(out, "Dataset", "Rows", "Batches", "Removed")
	for _, d := range s.Datasets {
		table.Append([]string{
			d.Dataset,
			strconv.FormatInt(d.Rows, 10),
			strconv.Itoa(d.Batches),
			strconv.Itoa(d.Removed),
		})
	}
	table.SetFooter([]string{"total", strconv.FormatInt(s.RowsEmitted(), 10), strconv.Itoa(s.BatchesWritten()), ""})
	table.Render()

	if len(s.Failures) > 0 {
		failures := newTable(out, "Member", "CIK", "Stage", "Error")
		for _, f := range s.Failures {
			failures.Append([]string{f.Member, f.CIK, f.Stage, f.Err.Error()})
		}
		failures.Render()
		if int64(len(s.Failures)) < s.RecordsSkipped {
			fmt.Fprintf(out, "... %d more skipped records\n", s.RecordsSkipped-int64(len(s.Failures)))
		}
	}
}

// verified is the outcome of checking one produced file
type verified struct {
	dataset string
	path    string
	rows    int64
	groups  int
	err     error
}

func printVerification(out io.Writer, results []verified) {
	table := newTable(out, "Dataset", "File", "Rows", "Row Groups", "Status")
	for _, r := range results {
		status := "ok"
		if r.err != nil {
			status = r.err.Error()
		}
		table.Append([]string{
			r.dataset,
			filepath.Base(r.path),
			strconv.FormatInt(r.rows, 10),
			strconv.Itoa(r.groups),
			status,
		})
	}
	table.Render()
}

func printLoad(out io.Writer, results []warehouse.Result) {
	table := newTable(out, "Table", "Files", "Removed Objects", "Rows", "Job")
	for _, r := range results {
		table.Append([]string{
			r.Table,
			strconv.Itoa(r.Files),
			strconv.Itoa(r.Removed),
			strconv.FormatInt(r.OutputRows, 10),
			r.JobID,
		})
	}
	table.Render()
}
