// Package export writes scan results as a comma-separated table.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mikey/phish-scanner/internal/core"
)

// Header is the first row of every export
var Header = []string{
	"Subject",
	"Sender",
	"Label",
	"AI Phishing %",
	"Human Phishing %",
	"Legitimate %",
	"Confidence",
}

// Rows converts results into table rows. Results whose ItemIndex does not
// refer to an entry of items are skipped.
func Rows(items []core.EmailItem, results []core.ScanResult) [][]string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		if r.ItemIndex < 0 || r.ItemIndex >= len(items) {
			continue
		}
		item := items[r.ItemIndex]
		rows = append(rows, []string{
			item.Subject(),
			item.Sender(),
			string(r.PredictedLabel),
			percent(r.ClassProbabilities[core.LabelAIPhishing]),
			percent(r.ClassProbabilities[core.LabelHumanPhishing]),
			percent(r.ClassProbabilities[core.LabelLegitimate]),
			r.Confidence(),
		})
	}
	return rows
}

// WriteCSV writes the header and one row per exportable result
func WriteCSV(w io.Writer, items []core.EmailItem, results []core.ScanResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := cw.WriteAll(Rows(items, results)); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	return nil
}

// WriteFile writes the export to path, replacing it in one step
func WriteFile(path string, items []core.EmailItem, results []core.ScanResult) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, items, results); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close export file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move export into place: %w", err)
	}
	return nil
}

func percent(p float64) string {
	return fmt.Sprintf("%.1f", p*100)
}
