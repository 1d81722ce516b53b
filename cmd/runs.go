package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/yumyai/seqst/pkg/db"
	"github.com/yumyai/seqst/pkg/output"
	"gopkg.in/yaml.v3"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect runs recorded in the structure index",
}

var runsShowCmd = &cobra.Command{
	Use:   "show RUN_ID",
	Short: "Print the entries of a recorded run as YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsShowCmd)
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", args[0], err)
	}

	conn, err := openIndexDB(cmd)
	if err != nil {
		return err
	}
	defer conn.Close()

	entries, err := db.NewRunStore(conn).Entries(cmd.Context(), id)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("run %s not found", id)
	}

	out := make([]output.EntrySummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, output.EntrySummary{
			Descriptor: e.Descriptor,
			Length:     len(e.Sequence),
			Source:     e.Structures.Source.String(),
			Structures: e.Structures.IDs,
			Accessions: e.Accessions,
		})
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}
