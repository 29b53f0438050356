// Package main contains tgparse, a CLI that runs the filtering pass over a
// raw export file without touching the database: it writes the filtered
// snapshot and prints the n-gram boilerplate report.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rmarkelov/archivarius/internal/pipeline"
	"github.com/rmarkelov/archivarius/internal/telegram"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tgparse:", err)
		os.Exit(1)
	}
}

func run() error {
	input := flag.String("input", "", "Path to the raw export JSON file")
	garbage := flag.String("garbage", "", "Path to the garbage spec JSON file")
	output := flag.String("output", pipeline.FilteredArtifactName, "Path for the filtered output")
	ngram := flag.Int("ngram", 3, "N-gram window width for the boilerplate report")
	exceptions := flag.String("exceptions", "", "Comma-separated n-gram keys to exclude from the report")
	flag.Parse()

	if *input == "" {
		return fmt.Errorf("-input is required")
	}

	spec, err := pipeline.LoadGarbageSpec(*garbage)
	if err != nil {
		return err
	}

	filter := pipeline.NewFilter(spec, *ngram)
	var records []pipeline.ParsedRecord
	invalid := 0

	err = pipeline.ForEach(*input, "messages", func(raw map[string]any) error {
		msg, err := telegram.Normalize(raw)
		if err != nil {
			invalid++
			return nil
		}
		if msg == nil {
			return nil
		}
		if rec := filter.Apply(msg); rec != nil {
			records = append(records, *rec)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if records == nil {
		records = []pipeline.ParsedRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode filtered records: %w", err)
	}
	if err := os.WriteFile(*output, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", *output, err)
	}

	var excluded []string
	if *exceptions != "" {
		excluded = strings.Split(*exceptions, ",")
	}

	fmt.Printf("records: %d (invalid skipped: %d)\n", len(records), invalid)
	fmt.Println("frequent n-grams:")
	for _, key := range filter.NGrams().Report(excluded) {
		fmt.Printf("  %6d  %s\n", filter.NGrams().Count(key), key)
	}
	return nil
}
