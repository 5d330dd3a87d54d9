package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wolfman30/radiology-ops/cmd/mainconfig"
	"github.com/wolfman30/radiology-ops/internal/archive"
	appconfig "github.com/wolfman30/radiology-ops/internal/config"
)

// fetchFunc loads an archive from a path or s3:// URI.
type fetchFunc func(ctx context.Context, source string) ([]byte, error)

func archiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect appointment archive exports",
	}
	cmd.AddCommand(archiveViewCmd(fetchArchive))
	return cmd
}

func archiveViewCmd(fetch fetchFunc) *cobra.Command {
	view := &cobra.Command{
		Use:   "view <file|s3://bucket/key>",
		Short: "Summarize and list the records in an archive file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			data, err := fetch(ctx, args[0])
			if err != nil {
				return err
			}
			records, err := archive.Decode(bytes.NewReader(data))
			if err != nil {
				return err
			}

			status, _ := cmd.Flags().GetString("status")
			examType, _ := cmd.Flags().GetString("exam-type")
			if status != "" {
				records = archive.FilterRecords(records, "status", status)
			}
			if examType != "" {
				records = archive.FilterRecords(records, "examType", examType)
			}
			archive.SortByDate(records)

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"summary": archive.Summarize(records),
					"records": records,
				})
			}
			return printArchive(cmd.OutOrStdout(), archive.Summarize(records), records)
		},
	}
	view.Flags().String("status", "", "Only show records with this status")
	view.Flags().String("exam-type", "", "Only show records with this exam type")
	view.Flags().Bool("json", false, "Print JSON instead of a table")
	return view
}

func fetchArchive(ctx context.Context, source string) ([]byte, error) {
	bucket, key, ok := archive.ParseS3URI(source)
	if !ok {
		return os.ReadFile(source)
	}
	cfg := appconfig.Load()
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	store := archive.NewStore(mainconfig.NewS3Client(awsCfg, cfg), bucket, nil)
	return store.Get(ctx, key)
}

func printArchive(w io.Writer, s archive.Summary, records []archive.Record) error {
	fmt.Fprintf(w, "%d records", s.Count)
	if s.FirstDate != "" {
		fmt.Fprintf(w, " from %s to %s", s.FirstDate, s.LastDate)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "by status: %s\n", formatCounts(s.ByStatus))
	fmt.Fprintf(w, "by exam type: %s\n\n", formatCounts(s.ByExamType))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTIME\tEXAM\tSTATUS\tPATIENT\tPERFORMED BY")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID(), r.String("date"), r.String("time"), r.String("examType"),
			r.String("status"), r.String("patientName"), r.String("performedByName"))
	}
	return tw.Flush()
}

func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var buf bytes.Buffer
	for i, k := range keys {
		if i > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(&buf, "%s=%d", k, counts[k])
	}
	return buf.String()
}
