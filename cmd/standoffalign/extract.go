package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgallion1/standoffalign/internal/parser"
	"github.com/dgallion1/standoffalign/internal/streams"
)

var extractFlags struct {
	output      string
	compression string
	urlPrefix   string
}

var extractCmd = &cobra.Command{
	Use:   "extract FILE|DIR...",
	Short: "Write url, text and deferred streams from HTML, Markdown or text files",
	Long: `Parses each document into text blocks and writes one line per document
to the url, base64 text and deferred standoff streams in the output folder.
Folders are walked recursively and unsupported files are skipped. A
document's url is --url-prefix followed by its path relative to the
argument it was found under.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExtract,
}

func init() {
	f := extractCmd.Flags()
	f.StringVarP(&extractFlags.output, "output", "o", "", "output folder (required)")
	f.StringVar(&extractFlags.compression, "compression", "", "stream compression (gz or xz)")
	f.StringVar(&extractFlags.urlPrefix, "url-prefix", "", "prefix for document urls")
	extractCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(extractCmd)
}

type inputFile struct {
	path string
	url  string
}

// collectInputs expands folders into the supported files below them.
func collectInputs(args []string, prefix string) ([]inputFile, error) {
	var files []inputFile
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, inputFile{path: arg, url: prefix + filepath.Base(arg)})
			continue
		}
		var found []inputFile
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !parser.IsSupportedExtension(path) {
				return nil
			}
			rel, err := filepath.Rel(arg, path)
			if err != nil {
				return err
			}
			found = append(found, inputFile{path: path, url: prefix + filepath.ToSlash(rel)})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", arg, err)
		}
		sort.Slice(found, func(i, j int) bool { return found[i].url < found[j].url })
		files = append(files, found...)
	}
	return files, nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	comp := cfg.Compression
	if cmd.Flags().Changed("compression") {
		comp = extractFlags.compression
	}
	c, err := streams.ParseCompression(comp)
	if err != nil {
		return err
	}

	files, err := collectInputs(args, extractFlags.urlPrefix)
	if err != nil {
		return err
	}

	w, err := streams.NewWriter(extractFlags.output, c)
	if err != nil {
		return err
	}

	var skipped int
	for _, in := range files {
		if err := extractFile(w, in); err != nil {
			if errors.Is(err, errUnsupported) {
				logger.Warn("skipping file", "path", in.path, "error", err)
				skipped++
				continue
			}
			w.Close()
			return err
		}
		logger.Debug("extracted", "path", in.path, "url", in.url)
	}
	if err := w.Close(); err != nil {
		return err
	}
	logger.Info("extraction complete",
		"documents", w.Documents(),
		"skipped", skipped,
		"output", extractFlags.output,
	)
	return nil
}

var errUnsupported = errors.New("unsupported document")

func extractFile(w *streams.Writer, in inputFile) error {
	p, err := parser.ForFile(in.path)
	if err != nil {
		return fmt.Errorf("%w: %w", errUnsupported, err)
	}
	f, err := os.Open(in.path)
	if err != nil {
		return err
	}
	defer f.Close()

	bs, err := p.Parse(f, in.path)
	if err != nil {
		return err
	}
	if len(bs) == 0 {
		logger.Debug("document has no text", "path", in.path)
	}
	return w.WriteDocument(strings.TrimSpace(in.url), bs)
}
