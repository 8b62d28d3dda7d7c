package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// Role represents a chat turn role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatTurn is a single entry of a discussion transcript.
type ChatTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Timestamp is a video position written either as "MM:SS" or as whole seconds.
// The zero value means "not set".
type Timestamp string

// UnmarshalJSON accepts both JSON strings and JSON numbers.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = Timestamp(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("timestamp must be a string or a number, got %s", data)
	}
	i, err := n.Int64()
	if err != nil {
		return fmt.Errorf("timestamp %s is not whole seconds", n)
	}
	*t = Timestamp(strconv.FormatInt(i, 10))
	return nil
}

// IsSet reports whether the timestamp has a value.
func (t Timestamp) IsSet() bool { return t != "" }

func (t Timestamp) String() string { return string(t) }

// QuestionType identifies how a question is answered and graded.
type QuestionType string

const (
	// TypeMCQ is a multiple-choice question graded by exact match.
	TypeMCQ QuestionType = "mcq"
	// TypeOpen is a free-text question graded by the LLM judge.
	TypeOpen QuestionType = "open"
	// TypeShort is a short free-text answer graded by the LLM judge.
	TypeShort QuestionType = "short"
	// TypeReflective asks the learner to reflect; graded like TypeOpen.
	TypeReflective QuestionType = "reflective"
)

// ParseQuestionType normalizes the spellings found in topic banks.
func ParseQuestionType(s string) (QuestionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mcq", "multiple-choice", "multiple_choice":
		return TypeMCQ, nil
	case "open", "open-ended", "open_ended", "discussion":
		return TypeOpen, nil
	case "short", "short-answer", "short_answer":
		return TypeShort, nil
	case "reflective":
		return TypeReflective, nil
	}
	return "", fmt.Errorf("unknown question type %q", s)
}

// Criterion is one line of a grading rubric.
type Criterion struct {
	Criteria string `json:"criteria"`
	Points   int    `json:"points"`
}

// Reference points at the part of the lecture a question is based on.
type Reference struct {
	Timestamp Timestamp `json:"timestamp"`
	Text      string    `json:"text"`
}

// Choice holds the MCQ-only fields of a question.
type Choice struct {
	Options       []string
	CorrectAnswer string
}

// Rubric holds the free-text fields of a question. Either SampleAnswer or
// Criteria is set; criteria points need not add up to the question's value.
type Rubric struct {
	SampleAnswer string
	Criteria     []Criterion
}

// Question is a topic question. Exactly one of Choice and Rubric is non-nil,
// matching Type.
type Question struct {
	Text               string
	Type               QuestionType
	PointValue         int
	Required           bool
	Hints              []string
	Explanation        string
	References         []Reference
	ReferenceTimestamp Timestamp

	Choice *Choice
	Rubric *Rubric
}

// IsChoice reports whether the question is multiple choice.
func (q Question) IsChoice() bool { return q.Type == TypeMCQ }

// QuestionRecord is the wire form of a question in topic banks and exports.
type QuestionRecord struct {
	TopicTitle         string          `json:"topic_title,omitempty"`
	Question           string          `json:"question"`
	Type               string          `json:"type"`
	PointValue         int             `json:"point_value"`
	Required           bool            `json:"required"`
	Options            []string        `json:"options,omitempty"`
	CorrectAnswer      string          `json:"correct_answer,omitempty"`
	Answer             json.RawMessage `json:"answer,omitempty"`
	SampleAnswer       string          `json:"sample_answer,omitempty"`
	Hints              []string        `json:"hints,omitempty"`
	Explanation        string          `json:"explanation,omitempty"`
	ReferenceText      []Reference     `json:"reference_text,omitempty"`
	ReferenceTimestamp Timestamp       `json:"reference_timestamp,omitempty"`
}

// Parse converts the wire record into a typed question.
func (r QuestionRecord) Parse() (Question, error) {
	typ, err := ParseQuestionType(r.Type)
	if err != nil {
		return Question{}, err
	}
	q := Question{
		Text:               r.Question,
		Type:               typ,
		PointValue:         r.PointValue,
		Required:           r.Required,
		Hints:              r.Hints,
		Explanation:        r.Explanation,
		References:         r.ReferenceText,
		ReferenceTimestamp: r.ReferenceTimestamp,
	}

	if typ == TypeMCQ {
		correct := r.CorrectAnswer
		if correct == "" && len(r.Answer) > 0 {
			// Older banks store the correct option under "answer".
			if err := json.Unmarshal(r.Answer, &correct); err != nil {
				return Question{}, fmt.Errorf("mcq answer must be a string: %w", err)
			}
		}
		q.Choice = &Choice{Options: r.Options, CorrectAnswer: correct}
		return q, nil
	}

	rubric := &Rubric{SampleAnswer: r.SampleAnswer}
	if len(r.Answer) > 0 && string(r.Answer) != "null" {
		var sample string
		if err := json.Unmarshal(r.Answer, &sample); err == nil {
			rubric.SampleAnswer = sample
		} else if err := json.Unmarshal(r.Answer, &rubric.Criteria); err != nil {
			return Question{}, fmt.Errorf("answer must be a string or a list of criteria: %w", err)
		}
	}
	q.Rubric = rubric
	return q, nil
}

// Record converts the question back into its wire form.
func (q Question) Record() QuestionRecord {
	r := QuestionRecord{
		Question:           q.Text,
		Type:               string(q.Type),
		PointValue:         q.PointValue,
		Required:           q.Required,
		Hints:              q.Hints,
		Explanation:        q.Explanation,
		ReferenceText:      q.References,
		ReferenceTimestamp: q.ReferenceTimestamp,
	}
	if q.Choice != nil {
		r.Options = q.Choice.Options
		r.CorrectAnswer = q.Choice.CorrectAnswer
	}
	if q.Rubric != nil {
		var answer any = q.Rubric.SampleAnswer
		if len(q.Rubric.Criteria) > 0 {
			answer = q.Rubric.Criteria
		}
		r.Answer, _ = json.Marshal(answer)
	}
	return r
}

// MarshalJSON writes the question in topic bank form.
func (q Question) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.Record())
}

// UnmarshalJSON reads the question from topic bank form.
func (q *Question) UnmarshalJSON(data []byte) error {
	var r QuestionRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	parsed, err := r.Parse()
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// ContentItem is a timestamped note in a topic's detailed content.
type ContentItem struct {
	Timestamp Timestamp `json:"timestamp"`
	Content   string    `json:"content"`
}

// Topic is a titled, timestamped segment of the lecture video.
type Topic struct {
	Title              string        `json:"title"`
	Required           bool          `json:"required"`
	StartTimestamp     Timestamp     `json:"start_timestamp"`
	EndTimestamp       Timestamp     `json:"end_timestamp,omitempty"`
	Summary            string        `json:"summary,omitempty"`
	LearningObjectives []string      `json:"learning_objectives,omitempty"`
	DetailedContent    []ContentItem `json:"detailed_content,omitempty"`
	Questions          []Question    `json:"questions"`
}

// TopicBank is the top-level topic bank document.
type TopicBank struct {
	Topics []Topic `json:"topics"`
}

// TopicView is a topic resolved against its neighbours and the transcript.
type TopicView struct {
	Index   int
	Topic   Topic
	End     Timestamp // effective end; empty means unbounded
	Excerpt string
}

// AppConfig holds runtime parameters set via CLI flags.
type AppConfig struct {
	VideoURL      string
	BasePath      string // URL prefix for sub-path deployments (e.g. "/ml")
	SecureCookies bool   // Set Secure flag on cookies (disable for local dev)
}
