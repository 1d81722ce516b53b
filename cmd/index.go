package cmd

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/yumyai/seqst/logger"
	"github.com/yumyai/seqst/pkg/db"
	"go.uber.org/zap"
)

var errNoIndex = errors.New("no structure index configured, use --index or index.path")

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the local structure index",
}

var indexInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the index database and its tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		conn, err := openIndexDB(cmd)
		if err != nil {
			return err
		}
		defer conn.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "Index ready at %s\n", cfg.Index.Path)
		return nil
	},
}

var indexImportCmd = &cobra.Command{
	Use:   "import TABLE FILE...",
	Short: "Import tab separated rows into an index table",
	Long: `Import tab separated rows into one of the index tables:

  uniprot_map   accession <TAB> uniprot
  pdb_entries   uniprot <TAB> pdb_id
  predictions   uniprot <TAB> model_id [<TAB> cif_url]

Lines starting with '#' are ignored. Use - to read standard input.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runIndexImport,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexInitCmd, indexImportCmd)
}

func openIndexDB(cmd *cobra.Command) (*sql.DB, error) {
	if cfg.Index.Path == "" {
		return nil, errNoIndex
	}
	return db.Open(cmd.Context(), cfg.Index.Path)
}

func runIndexImport(cmd *cobra.Command, args []string) error {
	defer logger.Sync()

	table := db.Table(args[0])
	conn, err := openIndexDB(cmd)
	if err != nil {
		return err
	}
	defer conn.Close()

	ix := db.NewIndex(conn, 0)
	total := 0
	for _, path := range args[1:] {
		n, err := importFile(cmd, ix, table, path)
		if err != nil {
			return err
		}
		logger.Info("Imported rows", zap.String("table", string(table)), zap.String("file", path), zap.Int("rows", n))
		total += n
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d rows into %s\n", total, table)
	return nil
}

func importFile(cmd *cobra.Command, ix *db.Index, table db.Table, path string) (int, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		r = f
	}

	n, err := ix.Import(cmd.Context(), table, r)
	if err != nil {
		return 0, fmt.Errorf("importing %s: %w", path, err)
	}
	return n, nil
}
