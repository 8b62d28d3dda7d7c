package model

import "time"

// Draft is an editable copy of a topic bank question kept by the authoring tool.
type Draft struct {
	ID         int64     `json:"id"`
	TopicTitle string    `json:"topic_title"`
	Position   int       `json:"position"`
	Question   Question  `json:"question"`
	Edited     bool      `json:"edited"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DraftFilter narrows the authoring tool's question list. Empty fields match everything.
type DraftFilter struct {
	TopicTitle string
	Type       QuestionType
	Required   *bool
}

// ExportRecord returns the draft in exported question bank form.
func (d Draft) ExportRecord() QuestionRecord {
	r := d.Question.Record()
	r.TopicTitle = d.TopicTitle
	return r
}
