package catalog_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pavelanni/lecturetutor/internal/catalog"
	"github.com/pavelanni/lecturetutor/internal/model"
	"github.com/pavelanni/lecturetutor/internal/transcript"
)

const bankJSON = `{
  "topics": [
    {
      "title": "Gathering data",
      "required": true,
      "start_timestamp": "00:00",
      "summary": "Collect color and alcohol measurements.",
      "learning_objectives": ["Explain why data is needed"],
      "detailed_content": [{"timestamp": "00:30", "content": "Features"}],
      "questions": [
        {"question": "Q1", "type": "mcq", "point_value": 5, "required": true,
         "options": ["a", "b"], "correct_answer": "a", "hints": ["think"]},
        {"question": "Q2", "type": "open-ended", "point_value": 3, "required": false,
         "answer": "sample"},
        {"question": "Q3", "type": "short", "point_value": 2, "required": true,
         "answer": [{"criteria": "mentions color", "points": 1}]}
      ]
    },
    {
      "title": "Training",
      "required": false,
      "start_timestamp": 480,
      "questions": []
    }
  ]
}`

func TestPointsDerivation(t *testing.T) {
	c, err := catalog.Parse([]byte(bankJSON), catalog.FormatJSON)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	topic, ok := c.Topic("Gathering data")
	if !ok {
		t.Fatal("Topic(Gathering data) not found")
	}
	if got := catalog.CorePoints(topic); got != 7 {
		t.Errorf("CorePoints() = %d, want 7", got)
	}
	if got := catalog.TotalPoints(topic); got != 10 {
		t.Errorf("TotalPoints() = %d, want 10", got)
	}

	empty, _ := c.Topic("Training")
	if catalog.CorePoints(empty) != 0 || catalog.TotalPoints(empty) != 0 {
		t.Error("topic without questions should have zero points")
	}
}

func TestQuestionVariants(t *testing.T) {
	c, err := catalog.Parse([]byte(bankJSON), catalog.FormatJSON)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	qs := c.Topics()[0].Questions

	if qs[0].Type != model.TypeMCQ || qs[0].Choice == nil || qs[0].Choice.CorrectAnswer != "a" {
		t.Errorf("mcq not decoded: %+v", qs[0])
	}
	if qs[1].Type != model.TypeOpen || qs[1].Rubric == nil || qs[1].Rubric.SampleAnswer != "sample" {
		t.Errorf("open question not decoded: %+v", qs[1])
	}
	if qs[2].Rubric == nil || len(qs[2].Rubric.Criteria) != 1 || qs[2].Rubric.Criteria[0].Points != 1 {
		t.Errorf("criteria not decoded: %+v", qs[2])
	}
}

func TestEffectiveEnd(t *testing.T) {
	c, err := catalog.New([]model.Topic{
		{Title: "A", StartTimestamp: "00:00"},
		{Title: "B", StartTimestamp: "08:00"},
		{Title: "C", StartTimestamp: "12:00", EndTimestamp: "15:00"},
		{Title: "D", StartTimestamp: "15:00"},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		index int
		want  model.Timestamp
	}{
		{0, "08:00"},
		{1, "12:00"},
		{2, "15:00"},
		{3, ""},
		{9, ""},
	}
	for _, tt := range tests {
		if got := c.EffectiveEnd(tt.index); got != tt.want {
			t.Errorf("EffectiveEnd(%d) = %q, want %q", tt.index, got, tt.want)
		}
	}
}

func TestView(t *testing.T) {
	c, err := catalog.New([]model.Topic{
		{Title: "A", StartTimestamp: "00:00"},
		{Title: "B", StartTimestamp: "02:00"},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	idx := transcript.New("(00:00) intro (01:00) more (02:00) second (03:00) end")

	view, err := c.View(0, idx)
	if err != nil {
		t.Fatalf("View() error = %v", err)
	}
	if view.End != "02:00" {
		t.Errorf("End = %q, want 02:00", view.End)
	}
	// 02:00 is within range, so the section stops at 03:00.
	if view.Excerpt != "(00:00) intro (01:00) more (02:00) second" {
		t.Errorf("Excerpt = %q", view.Excerpt)
	}

	last, err := c.View(1, idx)
	if err != nil {
		t.Fatalf("View() error = %v", err)
	}
	if last.Excerpt != "(02:00) second (03:00) end" {
		t.Errorf("Excerpt = %q", last.Excerpt)
	}

	if _, err := c.View(5, idx); err == nil {
		t.Error("View(5) should fail")
	}
}

func TestParseFailures(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"missing topics", `{}`, "topics"},
		{"missing title", `{"topics":[{"start_timestamp":"00:00"}]}`, "title"},
		{"missing point value", `{"topics":[{"title":"A","start_timestamp":"00:00",
			"questions":[{"question":"q","type":"open"}]}]}`, "point_value"},
		{"correct answer not an option", `{"topics":[{"title":"A","start_timestamp":"00:00",
			"questions":[{"question":"q","type":"mcq","point_value":1,"options":["x"],"correct_answer":"y"}]}]}`,
			"correct_answer"},
		{"mcq without options", `{"topics":[{"title":"A","start_timestamp":"00:00",
			"questions":[{"question":"q","type":"mcq","point_value":1}]}]}`, "options"},
		{"duplicate titles", `{"topics":[{"title":"A","start_timestamp":"00:00"},
			{"title":"A","start_timestamp":"01:00"}]}`, "duplicate"},
		{"bad timestamp", `{"topics":[{"title":"A","start_timestamp":"soon"}]}`, "start_timestamp"},
		{"unknown type", `{"topics":[{"title":"A","start_timestamp":"00:00",
			"questions":[{"question":"q","type":"essay","point_value":1}]}]}`, "unknown question type"},
		{"not json", `{"topics": [`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := catalog.Parse([]byte(tt.doc), catalog.FormatJSON)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadYAML(t *testing.T) {
	doc := `topics:
  - title: Intro
    required: true
    start_timestamp: "00:00"
    questions:
      - question: Which drink is darker?
        type: mcq
        point_value: 2
        required: true
        options: [wine, beer]
        correct_answer: wine
  - title: Outro
    start_timestamp: 300
`
	path := filepath.Join(t.TempDir(), "topics.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := catalog.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	if got := c.EffectiveEnd(0); got != "300" {
		t.Errorf("EffectiveEnd(0) = %q, want 300", got)
	}
	if titles := c.CoreTopics(); len(titles) != 1 || titles[0] != "Intro" {
		t.Errorf("CoreTopics() = %v", titles)
	}
	if c.Index("Outro") != 1 || c.Index("nope") != -1 {
		t.Error("Index() returned wrong positions")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := catalog.Load(filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
