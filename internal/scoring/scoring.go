// Package scoring grades learner answers. Multiple-choice questions are
// matched exactly; free-text answers and discussion turns go to an LLM judge.
package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pavelanni/lecturetutor/internal/llm"
	"github.com/pavelanni/lecturetutor/internal/llm/prompts"
	"github.com/pavelanni/lecturetutor/internal/model"
)

var (
	// ErrJudgeUnavailable wraps transport failures of the LLM judge.
	ErrJudgeUnavailable = errors.New("grading service unavailable")
	// ErrEmptyAnswer is returned for blank free-text submissions.
	ErrEmptyAnswer = errors.New("answer is empty")
	// ErrConversationTooShort is returned when there is nothing to grade yet.
	ErrConversationTooShort = errors.New("conversation too short to grade")
)

// GenericHint is shown when a question has neither hints nor an explanation.
const GenericHint = "Review the related part of the video and try again."

// MinGradedTurns is the smallest transcript GradeConversation accepts.
const MinGradedTurns = 3

// gradingWindow is how many recent non-system turns the judge sees.
const gradingWindow = 4

var firstInteger = regexp.MustCompile(`\d+`)

// Outcome tells whether a score came from a well-formed judge reply.
type Outcome string

const (
	Graded   Outcome = "graded"
	Degraded Outcome = "degraded"
)

// Classification is the judge's reading of the learner's latest message.
type Classification string

const (
	ClassQuestion Classification = "question"
	ClassAnswer   Classification = "answer"
	ClassOther    Classification = "other"
	ClassUnknown  Classification = "unknown"
)

// Reply is a parsed judge reply. Score is kept as the judge wrote it.
type Reply struct {
	Score          float64
	Feedback       string
	Classification Classification
	Outcome        Outcome
	Reason         string // why the reply was degraded
}

// Result is the outcome of scoring one submission.
type Result struct {
	IsCorrect bool
	Points    int
	Feedback  string
	Hint      string // set when the answer was not fully correct
	Outcome   Outcome
	Reason    string
}

// ChatGrade is the judge's verdict on the latest discussion exchange.
type ChatGrade struct {
	Points         int
	Feedback       string
	Classification Classification
	Outcome        Outcome
	Reason         string
}

// Engine scores answers, using the judge for free-text questions.
type Engine struct {
	judge   llm.Completer
	prompts *prompts.Set
}

// NewEngine creates a scoring engine.
func NewEngine(judge llm.Completer, set *prompts.Set) *Engine {
	return &Engine{judge: judge, prompts: set}
}

// ScoreChoice grades a multiple-choice submission. failedBefore is the number
// of earlier failed attempts at the same question.
func ScoreChoice(q model.Question, submission string, failedBefore int) Result {
	correct := q.Choice != nil && submission == q.Choice.CorrectAnswer
	if correct {
		return Result{
			IsCorrect: true,
			Points:    q.PointValue,
			Feedback:  q.Explanation,
			Outcome:   Graded,
		}
	}
	return Result{
		Hint:    HintFor(q, failedBefore+1),
		Outcome: Graded,
	}
}

// HintFor picks the hint for the given 1-based attempt, reusing the last hint
// once they run out.
func HintFor(q model.Question, attempt int) string {
	if len(q.Hints) > 0 {
		i := min(max(attempt-1, 0), len(q.Hints)-1)
		return q.Hints[i]
	}
	if q.Explanation != "" {
		return q.Explanation
	}
	return GenericHint
}

// Score grades a submission for question q of the given topic.
func (e *Engine) Score(ctx context.Context, view model.TopicView, q model.Question, submission string, failedBefore int) (Result, error) {
	if q.IsChoice() {
		return ScoreChoice(q, submission, failedBefore), nil
	}
	if strings.TrimSpace(submission) == "" {
		return Result{}, ErrEmptyAnswer
	}

	prompt := e.prompts.Fill(prompts.GradeAnswer, map[string]string{
		prompts.Context:  topicContext(view),
		prompts.Question: fmt.Sprintf("%s (worth %d points)", q.Text, q.PointValue),
		prompts.Answer:   reference(q),
		prompts.Input:    prompts.Sanitize(submission),
	})

	raw, err := e.ask(ctx, prompt)
	if err != nil {
		return Result{}, err
	}
	reply := ParseGradingReply(raw)

	score := min(max(reply.Score, 0), float64(q.PointValue))
	correct := score >= float64(q.PointValue)
	points := int(math.Round(score))
	if !correct && points >= q.PointValue {
		// Full points only come with a fully correct answer.
		points = q.PointValue - 1
	}
	res := Result{
		IsCorrect: correct,
		Points:    points,
		Feedback:  reply.Feedback,
		Outcome:   reply.Outcome,
		Reason:    reply.Reason,
	}
	if !res.IsCorrect {
		res.Hint = HintFor(q, failedBefore+1)
	}
	slog.Info("answer graded", "question", q.Text, "points", points, "of", q.PointValue, "outcome", reply.Outcome)
	return res, nil
}

// GradeConversation asks the judge to score the latest exchange of a discussion.
func (e *Engine) GradeConversation(ctx context.Context, turns []model.ChatTurn) (ChatGrade, error) {
	if len(turns) < MinGradedTurns {
		return ChatGrade{}, ErrConversationTooShort
	}

	var visible []model.ChatTurn
	for _, t := range turns {
		if t.Role != model.RoleSystem {
			visible = append(visible, t)
		}
	}
	if len(visible) > gradingWindow {
		visible = visible[len(visible)-gradingWindow:]
	}

	var sb strings.Builder
	for _, t := range visible {
		if t.Role == model.RoleUser {
			sb.WriteString("User: ")
		} else {
			sb.WriteString("Assistant: ")
		}
		sb.WriteString(t.Content)
		sb.WriteString("\n")
	}

	prompt := e.prompts.Fill(prompts.ScoreUpdate, map[string]string{
		prompts.Conversation: sb.String(),
	})
	raw, err := e.ask(ctx, prompt)
	if err != nil {
		return ChatGrade{}, err
	}
	reply := ParseGradingReply(raw)
	return ChatGrade{
		Points:         int(math.Round(max(reply.Score, 0))),
		Feedback:       reply.Feedback,
		Classification: reply.Classification,
		Outcome:        reply.Outcome,
		Reason:         reply.Reason,
	}, nil
}

func (e *Engine) ask(ctx context.Context, prompt string) (string, error) {
	raw, err := e.judge.Complete(ctx, llm.Request{
		Turns: []model.ChatTurn{{Role: model.RoleUser, Content: prompt}},
		JSON:  true,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrJudgeUnavailable, err)
	}
	return raw, nil
}

// topicContext describes the topic for the judge: title, range, summary,
// detailed notes and the transcript excerpt.
func topicContext(view model.TopicView) string {
	var sb strings.Builder
	t := view.Topic
	end := view.End.String()
	if end == "" {
		end = "end"
	}
	fmt.Fprintf(&sb, "Topic: %s (%s to %s)\n", t.Title, t.StartTimestamp, end)
	if t.Summary != "" {
		fmt.Fprintf(&sb, "Summary: %s\n", t.Summary)
	}
	for _, c := range t.DetailedContent {
		fmt.Fprintf(&sb, "- [%s] %s\n", c.Timestamp, c.Content)
	}
	if view.Excerpt != "" {
		sb.WriteString("Transcript:\n")
		sb.WriteString(view.Excerpt)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func reference(q model.Question) string {
	if q.Rubric == nil {
		return "(none)"
	}
	if len(q.Rubric.Criteria) == 0 {
		if q.Rubric.SampleAnswer == "" {
			return "(none)"
		}
		return q.Rubric.SampleAnswer
	}
	var sb strings.Builder
	for _, c := range q.Rubric.Criteria {
		fmt.Fprintf(&sb, "- %s (%d points)\n", c.Criteria, c.Points)
	}
	return strings.TrimRight(sb.String(), "\n")
}

type judgeReply struct {
	Score          *float64 `json:"score"`
	Feedback       string   `json:"feedback"`
	Classification string   `json:"user_input_classification"`
}

// ParseGradingReply reads a judge reply. A JSON object with a score is
// Graded; one without a score is Degraded with zero. Text that is not JSON
// falls back to its first integer, or zero, and is Degraded.
func ParseGradingReply(raw string) Reply {
	text := stripFences(raw)

	var jr judgeReply
	if err := json.Unmarshal([]byte(text), &jr); err == nil {
		reply := Reply{
			Feedback:       jr.Feedback,
			Classification: classify(jr.Classification),
			Outcome:        Graded,
		}
		if jr.Score != nil {
			reply.Score = *jr.Score
			return reply
		}
		reply.Outcome = Degraded
		reply.Reason = "JSON reply has no score"
		slog.Warn("judge reply degraded", "reason", reply.Reason, "raw", raw)
		return reply
	}

	reply := Reply{Classification: ClassUnknown, Outcome: Degraded}
	if m := firstInteger.FindString(raw); m != "" {
		n, err := strconv.Atoi(m)
		if err == nil {
			reply.Score = float64(n)
			reply.Reason = "reply is not JSON; used first number"
		} else {
			reply.Reason = "number in reply out of range"
		}
	} else {
		reply.Reason = "no score in reply"
	}
	slog.Warn("judge reply degraded", "reason", reply.Reason, "score", reply.Score, "raw", raw)
	return reply
}

func classify(s string) Classification {
	switch c := Classification(strings.ToLower(strings.TrimSpace(s))); c {
	case ClassQuestion, ClassAnswer, ClassOther:
		return c
	}
	return ClassUnknown
}

// stripFences removes a surrounding markdown code fence, which some models add
// even in JSON mode.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
