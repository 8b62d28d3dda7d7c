// Package catalog loads the topic bank and derives per-topic point totals.
package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/pavelanni/lecturetutor/internal/model"
	"github.com/pavelanni/lecturetutor/internal/transcript"
)

//go:embed topicbank.schema.json
var schemaJSON string

// Format is the encoding of a topic bank document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ValidationError lists every problem found in a topic bank.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid topic bank: " + strings.Join(e.Problems, "; ")
}

// Catalog is the read-only, ordered collection of topics.
type Catalog struct {
	topics  []model.Topic
	byTitle map[string]int
}

// Load reads a topic bank, choosing the format by file extension.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topic bank: %w", err)
	}
	format := FormatJSON
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = FormatYAML
	}
	c, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	slog.Info("topic bank loaded", "path", path, "topics", len(c.topics))
	return c, nil
}

// Parse decodes and validates a topic bank document.
func Parse(data []byte, format Format) (*Catalog, error) {
	if format == FormatYAML {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse YAML: %w", err)
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("convert YAML: %w", err)
		}
		data = converted
	}

	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var bank model.TopicBank
	if err := json.Unmarshal(data, &bank); err != nil {
		return nil, fmt.Errorf("decode topic bank: %w", err)
	}
	return New(bank.Topics)
}

// New builds a catalog from already decoded topics.
func New(topics []model.Topic) (*Catalog, error) {
	if problems := check(topics); len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	c := &Catalog{
		topics:  topics,
		byTitle: make(map[string]int, len(topics)),
	}
	for i, t := range topics {
		c.byTitle[t.Title] = i
	}
	return c, nil
}

func validateSchema(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("validate topic bank: %w", err)
	}
	if result.Valid() {
		return nil
	}
	verr := &ValidationError{}
	for _, e := range result.Errors() {
		verr.Problems = append(verr.Problems, e.String())
	}
	return verr
}

func check(topics []model.Topic) []string {
	var problems []string
	seen := make(map[string]bool, len(topics))
	for i, t := range topics {
		where := fmt.Sprintf("topics[%d] %q", i, t.Title)
		if t.Title == "" {
			problems = append(problems, where+": title is required")
		}
		if seen[t.Title] {
			problems = append(problems, where+": duplicate title")
		}
		seen[t.Title] = true

		if _, err := transcript.ParseSeconds(t.StartTimestamp.String()); err != nil {
			problems = append(problems, where+": start_timestamp: "+err.Error())
		}
		if t.EndTimestamp.IsSet() {
			if _, err := transcript.ParseSeconds(t.EndTimestamp.String()); err != nil {
				problems = append(problems, where+": end_timestamp: "+err.Error())
			}
		}

		for j, q := range t.Questions {
			qwhere := fmt.Sprintf("%s questions[%d]", where, j)
			for _, p := range CheckQuestion(q) {
				problems = append(problems, qwhere+": "+p)
			}
		}
	}
	return problems
}

// CheckQuestion returns the rule violations of a single question.
func CheckQuestion(q model.Question) []string {
	var problems []string
	if strings.TrimSpace(q.Text) == "" {
		problems = append(problems, "question text is required")
	}
	if q.PointValue <= 0 {
		problems = append(problems, "point_value must be positive")
	}
	if q.ReferenceTimestamp.IsSet() {
		if _, err := transcript.ParseSeconds(q.ReferenceTimestamp.String()); err != nil {
			problems = append(problems, "reference_timestamp: "+err.Error())
		}
	}
	if !q.IsChoice() {
		return problems
	}
	if q.Choice == nil || len(q.Choice.Options) == 0 {
		return append(problems, "mcq needs options")
	}
	if !slices.Contains(q.Choice.Options, q.Choice.CorrectAnswer) {
		problems = append(problems, "correct_answer is not one of the options")
	}
	return problems
}

// Topics returns the topics in bank order.
func (c *Catalog) Topics() []model.Topic { return c.topics }

// Len returns the number of topics.
func (c *Catalog) Len() int { return len(c.topics) }

// Topic returns the topic with the given title.
func (c *Catalog) Topic(title string) (model.Topic, bool) {
	i, ok := c.byTitle[title]
	if !ok {
		return model.Topic{}, false
	}
	return c.topics[i], true
}

// Index returns the position of a topic, or -1.
func (c *Catalog) Index(title string) int {
	if i, ok := c.byTitle[title]; ok {
		return i
	}
	return -1
}

// At returns the topic at position i.
func (c *Catalog) At(i int) (model.Topic, error) {
	if i < 0 || i >= len(c.topics) {
		return model.Topic{}, fmt.Errorf("topic %d out of range", i)
	}
	return c.topics[i], nil
}

// CoreTopics returns the titles of required topics.
func (c *Catalog) CoreTopics() []string {
	var titles []string
	for _, t := range c.topics {
		if t.Required {
			titles = append(titles, t.Title)
		}
	}
	return titles
}

// EffectiveEnd returns the topic's end timestamp, falling back to the next
// topic's start. The last topic without an explicit end is unbounded ("").
func (c *Catalog) EffectiveEnd(i int) model.Timestamp {
	if i < 0 || i >= len(c.topics) {
		return ""
	}
	if end := c.topics[i].EndTimestamp; end.IsSet() {
		return end
	}
	if i+1 < len(c.topics) {
		return c.topics[i+1].StartTimestamp
	}
	return ""
}

// View resolves topic i against the transcript. A nil index yields an empty excerpt.
func (c *Catalog) View(i int, idx *transcript.Index) (model.TopicView, error) {
	t, err := c.At(i)
	if err != nil {
		return model.TopicView{}, err
	}
	view := model.TopicView{Index: i, Topic: t, End: c.EffectiveEnd(i)}
	if idx == nil {
		return view, nil
	}
	view.Excerpt, err = idx.Locate(t.StartTimestamp.String(), view.End.String())
	if err != nil {
		return view, fmt.Errorf("locate %q: %w", t.Title, err)
	}
	return view, nil
}

// TotalPoints sums the point values of all questions in the topic.
func TotalPoints(t model.Topic) int {
	total := 0
	for _, q := range t.Questions {
		total += q.PointValue
	}
	return total
}

// CorePoints sums the point values of the topic's required questions.
func CorePoints(t model.Topic) int {
	core := 0
	for _, q := range t.Questions {
		if q.Required {
			core += q.PointValue
		}
	}
	return core
}

// IsValidation reports whether err came from topic bank validation.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
