package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentic-research/figport/internal/ingest"
)

var extractShape bool

var extractCmd = &cobra.Command{
	Use:   "extract-ids [file.json]",
	Short: "Print every node id found in a plugin response (stdin when no file)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)
		if len(args) == 0 || args[0] == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		roots, err := ingest.Decode(data)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if extractShape {
			fmt.Fprintf(out, "# shape: %s, %d roots\n", roots.Shape, len(roots.Nodes))
		}
		for _, id := range roots.IDs() {
			fmt.Fprintln(out, id)
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().BoolVar(&extractShape, "shape", false, "Print the detected payload shape first")
	rootCmd.AddCommand(extractCmd)
}
