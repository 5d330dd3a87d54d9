// Command radctl is the operator CLI: it reads archive exports, tries out the
// feed parsers and tails the live queue.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wolfman30/radiology-ops/cmd/mainconfig"
	"github.com/wolfman30/radiology-ops/internal/modality"
	"github.com/wolfman30/radiology-ops/internal/shifts"
)

func main() {
	mainconfig.LoadDotEnv()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "radctl",
		Short:        "Radiology desk operator tools",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(archiveCmd())
	rootCmd.AddCommand(shiftsCmd())
	rootCmd.AddCommand(modalityCmd())
	rootCmd.AddCommand(liveCmd())
	return rootCmd
}

func shiftsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shifts",
		Short: "Shift text helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "parse <text>",
		Short: "Split free-text working hours into 24-hour ranges",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ranges := shifts.Parse(strings.Join(args, " "))
			if len(ranges) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no shifts recognized")
				return nil
			}
			for _, r := range ranges {
				if r.End == "" {
					fmt.Fprintln(cmd.OutOrStdout(), r.Start)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s-%s\n", r.Start, r.End)
			}
			return nil
		},
	})
	return cmd
}

func modalityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modality",
		Short: "Exam classification helpers",
	}
	classify := &cobra.Command{
		Use:   "classify <exam name>...",
		Short: "Print the modality each exam name maps to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			if asJSON {
				out := make(map[string]modality.Tag, len(args))
				for _, name := range args {
					out[name] = modality.Classify(name)
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}
			for _, name := range args {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", modality.Classify(name), name)
			}
			return nil
		},
	}
	classify.Flags().Bool("json", false, "Print a JSON object instead of lines")
	cmd.AddCommand(classify)
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
