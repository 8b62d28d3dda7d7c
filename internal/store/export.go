package store

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pavelanni/lecturetutor/internal/model"
)

// ExportFileName is the suggested name of an exported question bank.
const ExportFileName = "exported_questions.json"

// ExportDrafts returns every draft in exported question bank form.
func (s *Store) ExportDrafts() ([]model.QuestionRecord, error) {
	drafts, err := s.ListDrafts(model.DraftFilter{})
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	records := make([]model.QuestionRecord, 0, len(drafts))
	for _, d := range drafts {
		records = append(records, d.ExportRecord())
	}
	return records, nil
}

// WriteExport writes the exported question bank as an indented JSON array.
func (s *Store) WriteExport(w io.Writer) (int, error) {
	records, err := s.ExportDrafts()
	if err != nil {
		return 0, err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return 0, fmt.Errorf("encode export: %w", err)
	}
	return len(records), nil
}
