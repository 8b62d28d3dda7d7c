// Package discussion runs the tutor chat about one topic.
package discussion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pavelanni/lecturetutor/internal/llm"
	"github.com/pavelanni/lecturetutor/internal/llm/prompts"
	"github.com/pavelanni/lecturetutor/internal/model"
	"github.com/pavelanni/lecturetutor/internal/progress"
	"github.com/pavelanni/lecturetutor/internal/scoring"
)

// Canned learner turns.
const (
	StartMessage    = "Let's discuss this topic."
	PracticeMessage = "Let's start the practice session."
)

// Apology is shown in place of a reply when the tutor cannot be reached.
const Apology = "Sorry, I encountered an error while processing your message. Please try again."

var (
	// ErrUnavailable wraps LLM failures after retries.
	ErrUnavailable = errors.New("tutor unavailable")
	// ErrNotStarted is returned when no topic has been opened.
	ErrNotStarted = errors.New("no discussion topic selected")
)

// Reply is the outcome of one learner message.
type Reply struct {
	Text      string
	Grade     *scoring.ChatGrade // nil when the exchange was not graded
	Completed bool               // the topic became completed by this exchange
}

// Session is the discussion state of one learner.
// It is not safe for concurrent use.
type Session struct {
	tutor    llm.Completer
	engine   *scoring.Engine
	tracker  *progress.Tracker
	template string

	topic  string
	prompt prompts.Prompt
	turns  []model.ChatTurn
}

// New creates an empty session. template is the discussion prompt template.
func New(tutor llm.Completer, engine *scoring.Engine, tracker *progress.Tracker, template string) *Session {
	return &Session{tutor: tutor, engine: engine, tracker: tracker, template: template}
}

type topicPayload struct {
	Title              string              `json:"title"`
	Required           bool                `json:"required"`
	LearningObjectives []string            `json:"learning_objectives"`
	Summary            string              `json:"summary,omitempty"`
	StartTimestamp     model.Timestamp     `json:"start_timestamp"`
	EndTimestamp       model.Timestamp     `json:"end_timestamp"`
	DetailedContent    []model.ContentItem `json:"detailed_content"`
	Questions          []model.Question    `json:"questions"`
	Transcript         string              `json:"transcript"`
}

// BuildPrompt serializes the topic and its transcript excerpt and splices the
// JSON into the template at the topic placeholder.
func BuildPrompt(template string, view model.TopicView) (prompts.Prompt, error) {
	t := view.Topic
	payload := topicPayload{
		Title:              t.Title,
		Required:           t.Required,
		LearningObjectives: nonNil(t.LearningObjectives),
		Summary:            t.Summary,
		StartTimestamp:     t.StartTimestamp,
		EndTimestamp:       view.End,
		DetailedContent:    nonNil(t.DetailedContent),
		Questions:          nonNil(t.Questions),
		Transcript:         view.Excerpt,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return prompts.Prompt{}, fmt.Errorf("encode topic %q: %w", t.Title, err)
	}
	blob := bytes.TrimRight(buf.Bytes(), "\n")
	return prompts.Embed(template, prompts.TopicAndQuestions, string(blob)), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Open selects the topic under discussion and clears the chat.
func (s *Session) Open(view model.TopicView) error {
	p, err := BuildPrompt(s.template, view)
	if err != nil {
		return err
	}
	s.topic = view.Topic.Title
	s.prompt = p
	s.Reset()
	return nil
}

// Topic returns the title of the topic under discussion.
func (s *Session) Topic() string { return s.topic }

// Prompt returns the discussion prompt of the current topic.
func (s *Session) Prompt() prompts.Prompt { return s.prompt }

// Start opens the topic and asks the tutor to begin the discussion.
func (s *Session) Start(ctx context.Context, view model.TopicView) (string, error) {
	if err := s.Open(view); err != nil {
		return "", err
	}
	return s.exchange(ctx, StartMessage)
}

// Practice asks the tutor to begin a practice round.
func (s *Session) Practice(ctx context.Context) (string, error) {
	if s.topic == "" {
		return "", ErrNotStarted
	}
	return s.exchange(ctx, PracticeMessage)
}

// Respond sends a learner message, records the reply and grades the latest
// exchange. Grading problems are logged and never fail the call.
func (s *Session) Respond(ctx context.Context, text string) (Reply, error) {
	if s.topic == "" {
		return Reply{}, ErrNotStarted
	}
	answer, err := s.exchange(ctx, text)
	if err != nil {
		return Reply{Text: answer}, err
	}
	s.tracker.CountMessage()

	reply := Reply{Text: answer}
	grade, err := s.engine.GradeConversation(ctx, s.turns)
	switch {
	case errors.Is(err, scoring.ErrConversationTooShort):
		return reply, nil
	case err != nil:
		slog.Warn("discussion grading failed", "topic", s.topic, "error", err)
		return reply, nil
	}
	reply.Grade = &grade
	reply.Completed = s.tracker.ApplyChatGrade(s.topic, grade)
	slog.Debug("discussion graded", "topic", s.topic, "points", grade.Points,
		"classification", grade.Classification, "outcome", grade.Outcome)
	return reply, nil
}

// exchange sends the history plus a user turn. Both turns are kept only when
// the tutor answers.
func (s *Session) exchange(ctx context.Context, text string) (string, error) {
	turns := s.turns
	if len(turns) == 0 {
		turns = []model.ChatTurn{{Role: model.RoleSystem, Content: s.prompt.Resolve()}}
	}
	turns = append(turns[:len(turns):len(turns)], model.ChatTurn{Role: model.RoleUser, Content: text})

	answer, err := s.tutor.Complete(ctx, llm.Request{Turns: turns})
	if err != nil {
		slog.Error("tutor call failed", "topic", s.topic, "error", err)
		return Apology, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	s.turns = append(turns, model.ChatTurn{Role: model.RoleAssistant, Content: answer})
	return answer, nil
}

// Reset clears the chat and the message counter. Topic points are kept.
func (s *Session) Reset() {
	s.turns = nil
	s.tracker.ResetMessages()
}

// Close leaves the current topic and clears the chat.
func (s *Session) Close() {
	s.topic = ""
	s.prompt = prompts.Prompt{}
	s.Reset()
}

// Turns returns the whole transcript, system turn included.
func (s *Session) Turns() []model.ChatTurn { return s.turns }

// Visible returns the turns shown to the learner.
func (s *Session) Visible() []model.ChatTurn {
	out := make([]model.ChatTurn, 0, len(s.turns))
	for _, t := range s.turns {
		if t.Role != model.RoleSystem {
			out = append(out, t)
		}
	}
	return out
}
