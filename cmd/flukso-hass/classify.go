package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nlowe/flukso-hass/flukso"
	"github.com/nlowe/flukso-hass/internal/snapshot"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <dir>",
	Short: "Classify captured configuration documents without connecting to a broker",
	Long: `Classify reads <dir>/<device>/{flx,kube,sensor}.json for every device directory in <dir> and prints the
entities flukso-hass would expose for them. Ignored sensors from the configuration are honored.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := classifyDir(os.DirFS(args[0]), cfg.Flukso.IgnoreSensors)
		if err != nil {
			return err
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		defer enc.Close()

		return enc.Encode(records)
	},
}

// classifyDir loads every device directory of fsys into a ConfigStore and classifies it. Missing documents are left
// out so incomplete devices are skipped the same way a live discovery skips them.
func classifyDir(fsys fs.FS, ignore []string) ([]snapshot.Record, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}

	store := flukso.NewConfigStore()
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		for _, doc := range []flukso.DocumentType{flukso.DocumentFlx, flukso.DocumentKube, flukso.DocumentSensor} {
			name := filepath.ToSlash(filepath.Join(e.Name(), string(doc)+".json"))
			payload, err := fs.ReadFile(fsys, name)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			} else if err != nil {
				return nil, err
			}

			d, err := flukso.DecodeDocument(doc, payload)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}

			store.Store(e.Name(), d)
		}
	}

	numeric, binary, _ := flukso.Partition(flukso.NewClassifier(ignore).ClassifyAll(store))

	records := make([]snapshot.Record, 0, len(numeric)+len(binary))
	for _, d := range append(numeric, binary...) {
		records = append(records, snapshot.RecordOf(d))
	}

	return records, nil
}
