package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dgallion1/standoffalign/internal/blocks"
	"github.com/dgallion1/standoffalign/internal/config"
	"github.com/dgallion1/standoffalign/internal/pipeline"
	"github.com/dgallion1/standoffalign/internal/resultdb"
	"github.com/dgallion1/standoffalign/internal/standoff"
	"github.com/dgallion1/standoffalign/internal/streams"
)

var alignFlags struct {
	sourceDir    string
	targetDir    string
	compression  string
	format       string
	output       string
	resultDB     string
	continuation string
	strict       bool
	maxLineBytes int
}

var alignCmd = &cobra.Command{
	Use:   "align [SL_TEXT SL_URL SL_DEFERRED TL_TEXT TL_URL TL_DEFERRED] SENTENCES",
	Short: "Rebuild standoff annotations for an aligned sentence file",
	Long: `Reads the url, base64 text and deferred standoff streams of both languages
and the tab separated output of a sentence aligner (source url, target url,
source sentence, target sentence, ...). Prints one result per side per line.

The six stream files may be given in the order text, url, deferred for the
source and then the target language, or through --source-dir/--target-dir
which hold url, text and deferred files. SENTENCES may be "-" for stdin.
Every input may be gzip, xz or plain text.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 && len(args) != 7 {
			return fmt.Errorf("expected 1 or 7 arguments, got %d", len(args))
		}
		return nil
	},
	RunE: runAlign,
}

func init() {
	f := alignCmd.Flags()
	f.StringVar(&alignFlags.sourceDir, "source-dir", "", "folder with the source language streams")
	f.StringVar(&alignFlags.targetDir, "target-dir", "", "folder with the target language streams")
	f.StringVar(&alignFlags.compression, "compression", "", "stream file extension inside the folders (gz or xz)")
	f.StringVarP(&alignFlags.format, "format", "f", "", "output format: text, jsonl or sqlite")
	f.StringVarP(&alignFlags.output, "output", "o", "", "output file (default stdout)")
	f.StringVar(&alignFlags.resultDB, "db", "", "SQLite result database for --format sqlite")
	f.StringVar(&alignFlags.continuation, "continuation", "", "continuation span policy: span or offset")
	f.BoolVar(&alignFlags.strict, "strict", false, "abort on malformed aligned records")
	f.IntVar(&alignFlags.maxLineBytes, "max-line-bytes", 0, "longest accepted input line")
	rootCmd.AddCommand(alignCmd)
}

// alignConfig applies the command line flags that were set on top of cfg.
func alignConfig(cmd *cobra.Command, base config.Config) config.Config {
	c := base
	f := cmd.Flags()
	if f.Changed("source-dir") {
		c.SourceDir = alignFlags.sourceDir
	}
	if f.Changed("target-dir") {
		c.TargetDir = alignFlags.targetDir
	}
	if f.Changed("compression") {
		c.Compression = alignFlags.compression
	}
	if f.Changed("format") {
		c.OutputFormat = alignFlags.format
	}
	if f.Changed("db") {
		c.ResultDB = alignFlags.resultDB
	}
	if f.Changed("continuation") {
		c.Continuation = alignFlags.continuation
	}
	if f.Changed("strict") {
		c.Strict = alignFlags.strict
	}
	if f.Changed("max-line-bytes") {
		c.MaxLineBytes = alignFlags.maxLineBytes
	}
	return c
}

// streamPaths resolves both sides from positional arguments or folders.
func streamPaths(c config.Config, args []string) (src, tgt streams.Paths, sentences string, err error) {
	if len(args) == 7 {
		src = streams.Paths{Text: args[0], URL: args[1], Standoff: args[2]}
		tgt = streams.Paths{Text: args[3], URL: args[4], Standoff: args[5]}
		return src, tgt, args[6], nil
	}
	if c.SourceDir == "" || c.TargetDir == "" {
		return src, tgt, "", errors.New("--source-dir and --target-dir are required without the six stream files")
	}
	comp, err := streams.ParseCompression(c.Compression)
	if err != nil {
		return src, tgt, "", err
	}
	return streams.PathsIn(c.SourceDir, comp), streams.PathsIn(c.TargetDir, comp), args[0], nil
}

func runAlign(cmd *cobra.Command, args []string) error {
	ac := alignConfig(cmd, cfg)
	if err := ac.Validate(); err != nil {
		return err
	}
	srcPaths, tgtPaths, sentences, err := streamPaths(ac, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	log := logger.With("run_id", runID)

	src, tgt, err := loadStores(ctx, streams.NewLoader(ac.MaxLineBytes, log), srcPaths, tgtPaths)
	if err != nil {
		return err
	}

	in, err := openSentences(cmd, sentences)
	if err != nil {
		return err
	}
	defer in.Close()

	out, closeOut, err := openOutput(cmd, alignFlags.output)
	if err != nil {
		return err
	}

	sink, finish, err := openSink(ctx, ac, out, runID, sentences, src, tgt)
	if err != nil {
		closeOut()
		return err
	}

	aligner := pipeline.NewAligner(src, tgt, standoff.Reconstructor{Policy: ac.Policy()}, log)
	aligner.Strict = ac.Strict
	stats, runErr := aligner.Run(ctx, pipeline.NewRecordReader(in, ac.MaxLineBytes), sink)

	return errors.Join(runErr, finish(stats, runErr), closeOut())
}

// loadStores loads both sides concurrently.
func loadStores(ctx context.Context, loader *streams.Loader, srcPaths, tgtPaths streams.Paths) (*blocks.Store, *blocks.Store, error) {
	var (
		wg       sync.WaitGroup
		src, tgt *blocks.Store
		srcErr   error
		tgtErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		src, srcErr = loader.Load(ctx, blocks.Source, srcPaths)
	}()
	go func() {
		defer wg.Done()
		tgt, tgtErr = loader.Load(ctx, blocks.Target, tgtPaths)
	}()
	wg.Wait()
	if err := errors.Join(srcErr, tgtErr); err != nil {
		return nil, nil, err
	}
	return src, tgt, nil
}

func openSentences(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return streams.Decompress(cmd.InOrStdin())
	}
	rc, err := streams.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open aligned sentences: %w", err)
	}
	return rc, nil
}

// openOutput returns a buffered writer over path (or the command output)
// and a function that flushes and closes it.
func openOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	var (
		w      io.Writer = cmd.OutOrStdout()
		closer io.Closer
	)
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return nil, nil, fmt.Errorf("create output: %w", err)
		}
		w, closer = f, f
	}
	bw := bufio.NewWriter(w)
	return bw, func() error {
		err := bw.Flush()
		if closer != nil {
			err = errors.Join(err, closer.Close())
		}
		return err
	}, nil
}

// openSink builds the sink for the configured output format. finish must
// be called once the run ended.
func openSink(ctx context.Context, c config.Config, out io.Writer, runID, input string, src, tgt *blocks.Store) (pipeline.Sink, func(pipeline.Stats, error) error, error) {
	noop := func(pipeline.Stats, error) error { return nil }
	switch c.OutputFormat {
	case "jsonl":
		return pipeline.NewJSONSink(out), noop, nil
	case "sqlite":
		db, err := resultdb.Open(c.ResultDB)
		if err != nil {
			return nil, nil, err
		}
		rs, err := db.StartRun(ctx, resultdb.Run{
			ID:     runID,
			Source: c.SourceDir,
			Target: c.TargetDir,
			Input:  input,
			Policy: c.Policy().String(),
		})
		if err == nil {
			err = errors.Join(db.RecordDocuments(ctx, runID, src), db.RecordDocuments(ctx, runID, tgt))
		}
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		fmt.Fprintf(out, "run %s written to %s\n", runID, db.Path())
		return rs, func(stats pipeline.Stats, runErr error) error {
			var err error
			if runErr != nil {
				err = rs.Abort()
			} else {
				err = rs.Finish(stats)
			}
			return errors.Join(err, db.Close())
		}, nil
	default:
		return pipeline.NewTextSink(out), noop, nil
	}
}
