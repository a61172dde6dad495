package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/agentic-research/figport/api"
	"github.com/agentic-research/figport/internal/artifact"
	"github.com/agentic-research/figport/internal/reorganize"
)

var reorganizeCmd = &cobra.Command{
	Use:   "reorganize [export-dir]",
	Short: "Rebuild reorganized/ from an existing export without reconnecting",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		dir := cfg.OutputDir
		if len(args) == 1 {
			dir = args[0]
		}
		store, err := artifact.Open(dir)
		if err != nil {
			return err
		}
		stats, err := reorganize.New(store).Run(cmd.Context())
		if err != nil {
			return err
		}
		printStats(cmd.OutOrStdout(), dir, stats)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reorganizeCmd)
}

func printStats(out io.Writer, dir string, st *api.ReorganizeStats) {
	fmt.Fprintf(out, "Reorganized %s in %s\n", dir, st.ExecutionTime)
	fmt.Fprintf(out, "  nodes:   %s reconciled, %s saved, %s lost\n",
		humanize.Comma(int64(st.OriginalNodes)), humanize.Comma(int64(st.SavedNodes)), humanize.Comma(int64(st.DataLoss)))
	fmt.Fprintf(out, "  created: %d folders, %d files (%s)\n",
		st.CreatedFolders, st.CreatedFiles, humanize.Bytes(uint64(st.TotalSize)))

	steps := make([]string, 0, len(st.Steps))
	for name := range st.Steps {
		steps = append(steps, name)
	}
	sort.Strings(steps)
	for _, name := range steps {
		s := st.Steps[name]
		fmt.Fprintf(out, "  %-13s %d folders, %d files\n", name+":", s.Folders, s.Files)
	}
	fmt.Fprintf(out, "  size:    %s\n", st.SizeComparison.Summary)
	for _, w := range st.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
}
