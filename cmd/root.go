package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/yumyai/seqst/internal/config"
	"github.com/yumyai/seqst/internal/pipeline"
	"github.com/yumyai/seqst/logger"
	"github.com/yumyai/seqst/pkg/blast"
	"github.com/yumyai/seqst/pkg/db"
	"github.com/yumyai/seqst/pkg/output"
	"github.com/yumyai/seqst/pkg/resolve"
	"go.uber.org/zap"
)

var (
	version = "dev"
	cfgFile string
	cfg     config.Config
	v       = viper.New()

	fastaFile string
	sequence  string
	blastFile string
	onlyBlast bool
	outDir    string
)

var rootCmd = &cobra.Command{
	Use:   "seqst",
	Short: "Find known structures or predicted models for protein sequences",
	Long: `Given a protein sequence, or a FASTA file of sequences, seqst runs a BLAST
search, keeps near-identical PDB hits, cross-checks UniProt annotations for
entries BLAST missed (tags, point mutations) and falls back to predicted
models. Structure files are copied from a local mmCIF mirror.

Without -f, -s or -b a single sequence is read from standard input. A run can
be restarted from a saved BLAST.json with -b; without sequences, every query
in that file is analysed.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE:              runAnalysis,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file (default: ./"+config.DefaultFile+")")
	pf.String("index", "", "SQLite structure index")
	pf.String("log-level", "", "log level (debug, info, warn, error)")

	f := rootCmd.Flags()
	f.StringVarP(&fastaFile, "file", "f", "", "run on a file of FASTA protein sequences (*.fasta, *.fa)")
	f.StringVarP(&sequence, "seq", "s", "", "run on a single protein sequence")
	f.StringVarP(&blastFile, "blast", "b", "", "use results from a prior BLAST (*.json); output goes next to it unless -o is given")
	f.BoolVar(&onlyBlast, "only-blast", false, "stop after running BLAST")
	f.StringVarP(&outDir, "out", "o", "", "directory to save output; existing files may be overwritten")
	f.String("mirror", "", "local mmCIF mirror (<dir>/<source>/<id>.cif)")
	f.Bool("remote", false, "let blastp run the search on the NCBI servers")

	rootCmd.MarkFlagsMutuallyExclusive("file", "seq")
	rootCmd.MarkFlagsMutuallyExclusive("blast", "only-blast")

	// Bind flags to viper
	_ = v.BindPFlag("index.path", pf.Lookup("index"))
	_ = v.BindPFlag("log_level", pf.Lookup("log-level"))
	_ = v.BindPFlag("mirror", f.Lookup("mirror"))
	_ = v.BindPFlag("blast.remote", f.Lookup("remote"))
}

func setup(_ *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	var err error
	cfg, err = config.Load(v, cfgFile)
	if err != nil {
		return err
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	return logger.InitLogger(level)
}

func runAnalysis(cmd *cobra.Command, _ []string) error {
	defer logger.Sync()

	if err := checkExtension(fastaFile, ".fasta", ".fa"); err != nil {
		return err
	}
	if err := checkExtension(blastFile, ".json"); err != nil {
		return err
	}

	in := pipeline.Input{
		Sequence:  strings.TrimSpace(sequence),
		FastaPath: strings.TrimSpace(fastaFile),
		BlastPath: strings.TrimSpace(blastFile),
		OnlyBlast: onlyBlast,
		OutDir:    strings.TrimSpace(outDir),
	}
	if in.Sequence == "" && in.FastaPath == "" && in.BlastPath == "" {
		s, err := promptSequence(cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		in.Sequence = s
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(blast.Runner{
		Bin:        cfg.Blast.Bin,
		DB:         cfg.Blast.DB,
		Remote:     cfg.Blast.Remote,
		MaxTargets: cfg.Blast.MaxTargets,
	}, cfg.Thresholds)

	if cfg.Index.Path != "" {
		conn, err := db.Open(ctx, cfg.Index.Path)
		if err != nil {
			return err
		}
		defer conn.Close()

		ix := db.NewIndex(conn, cfg.Index.CacheTTL)
		p.Resolver = &resolve.Resolver{Mapper: ix, Structures: ix, Predictions: ix}
		p.Runs = db.NewRunStore(conn)
	} else {
		logger.Warn("No structure index configured, skipping UniProt cross-check and predicted models")
	}

	if cfg.Mirror != "" {
		p.Fetcher = output.MirrorFetcher{Dir: cfg.Mirror}
	} else {
		logger.Warn("No structure mirror configured, structure files are not saved")
	}

	res, err := p.Run(ctx, in)
	if err != nil {
		var cmdErr *blast.CommandError
		if errors.As(err, &cmdErr) {
			logger.Error("BLAST failed", zap.String("stderr", cmdErr.Stderr))
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Finished, results in %s\n", res.Dir)
	return nil
}

func checkExtension(path string, exts ...string) error {
	if path == "" {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(path)))
	for _, e := range exts {
		if ext == e {
			return nil
		}
	}
	return fmt.Errorf("invalid file extension for %s, expected %s", path, strings.Join(exts, " or "))
}

// promptSequence reads one sequence line from in.
func promptSequence(in io.Reader, prompt io.Writer) (string, error) {
	fmt.Fprint(prompt, "Protein sequence: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading sequence: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", pipeline.ErrInvalidInput
	}
	return line, nil
}

// Execute runs the root command
func Execute() error {
	return ExecuteContext(context.Background())
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(ver string) {
	version = ver
	rootCmd.Version = ver
}
