package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mikey/phish-scanner/internal/core"
	"go.uber.org/zap"
)

// TableName identifies the local CSV import source
const TableName = "csv"

// NoSubject is used for rows without a subject
const NoSubject = "No Subject"

// ParseTable turns CSV text into items. The header row is matched exactly
// against "subject" and "content"; rows with fewer than two columns are
// dropped.
func ParseTable(r io.Reader) ([]core.EmailItem, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	subjectIdx, contentIdx := -1, -1
	for i, name := range header {
		switch name {
		case "subject":
			if subjectIdx < 0 {
				subjectIdx = i
			}
		case "content":
			if contentIdx < 0 {
				contentIdx = i
			}
		}
	}

	var items []core.EmailItem
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		if len(row) < 2 {
			continue
		}

		subject := column(row, subjectIdx)
		if subject == "" {
			subject = NoSubject
		}
		items = append(items, core.EmailItem{
			BodyText:     column(row, contentIdx),
			SubjectLines: []string{subject},
		})
	}

	return items, nil
}

func column(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// LocalTableSource holds items imported from a CSV file
type LocalTableSource struct {
	logger *zap.Logger

	mu    sync.RWMutex
	items []core.EmailItem
}

// NewLocalTableSource creates an empty CSV source
func NewLocalTableSource(logger *zap.Logger) *LocalTableSource {
	return &LocalTableSource{logger: logger}
}

// Name returns the source name
func (s *LocalTableSource) Name() string {
	return TableName
}

// Items returns a copy of the imported list
func (s *LocalTableSource) Items() []core.EmailItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]core.EmailItem(nil), s.items...)
}

// Load parses r and replaces the item list
func (s *LocalTableSource) Load(r io.Reader) error {
	items, err := ParseTable(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.items = items
	s.mu.Unlock()

	s.logger.Info("Imported CSV items", zap.Int("count", len(items)))
	return nil
}
