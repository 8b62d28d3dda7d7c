package quiz_test

import (
	"context"
	"errors"
	"testing"

	"github.com/pavelanni/lecturetutor/internal/llm"
	"github.com/pavelanni/lecturetutor/internal/llm/prompts"
	"github.com/pavelanni/lecturetutor/internal/model"
	"github.com/pavelanni/lecturetutor/internal/progress"
	"github.com/pavelanni/lecturetutor/internal/quiz"
	"github.com/pavelanni/lecturetutor/internal/scoring"
)

func choice(text, correct string, points int) model.Question {
	return model.Question{
		Text: text, Type: model.TypeMCQ, PointValue: points, Required: true,
		Hints:  []string{"hint 1", "hint 2"},
		Choice: &model.Choice{Options: []string{"a", "b", "c"}, CorrectAnswer: correct},
	}
}

func newQuiz(t *testing.T) (*quiz.Quiz, *progress.Tracker) {
	t.Helper()
	topic := model.Topic{
		Title:    "Training",
		Required: true,
		Questions: []model.Question{
			choice("Q1", "a", 2),
			{Text: "Explain", Type: model.TypeOpen, PointValue: 3, Rubric: &model.Rubric{}},
			choice("Q2", "b", 2),
		},
	}
	tracker := progress.New([]model.Topic{topic})
	engine := scoring.NewEngine(llm.NewMock(), prompts.Default())
	return quiz.New(model.TopicView{Topic: topic}, engine, tracker), tracker
}

func TestSelectsChoiceQuestions(t *testing.T) {
	q, _ := newQuiz(t)
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}
	item, ok := q.Current()
	if !ok || item.Index != 0 {
		t.Errorf("Current() = %+v, %v", item, ok)
	}
}

func TestFlow(t *testing.T) {
	q, tracker := newQuiz(t)
	ctx := context.Background()

	if _, err := q.Submit(ctx, ""); !errors.Is(err, quiz.ErrNoSelection) {
		t.Errorf("Submit(\"\") error = %v, want ErrNoSelection", err)
	}
	if err := q.Next(); !errors.Is(err, quiz.ErrNotAnswered) {
		t.Errorf("Next() error = %v, want ErrNotAnswered", err)
	}

	res, err := q.Submit(ctx, "c")
	if err != nil {
		t.Fatal(err)
	}
	if res.IsCorrect || res.Hint != "hint 1" {
		t.Errorf("wrong answer result = %+v", res)
	}
	res, _ = q.Submit(ctx, "b")
	if res.Hint != "hint 2" {
		t.Errorf("second hint = %q, want hint 2", res.Hint)
	}
	res, _ = q.Submit(ctx, "a")
	if !res.IsCorrect || res.Points != 2 {
		t.Errorf("correct answer result = %+v", res)
	}
	if q.LastResult() == nil || !q.Solved() {
		t.Error("current question should be solved")
	}
	if err := q.Next(); err != nil {
		t.Fatalf("Next() error = %v", err)
	}

	item, _ := q.Current()
	if item.Index != 2 {
		t.Errorf("second item index = %d, want 2", item.Index)
	}
	if q.LastResult() != nil {
		t.Error("LastResult() should reset on a new question")
	}
	if _, err := q.Submit(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if err := q.Next(); err != nil {
		t.Fatal(err)
	}
	if !q.Done() {
		t.Fatal("quiz should be done")
	}
	if _, err := q.Submit(ctx, "a"); !errors.Is(err, quiz.ErrFinished) {
		t.Errorf("Submit() after finish error = %v", err)
	}

	s := q.Summary()
	if s.Total != 2 || s.FirstTry != 1 || s.Percent != 50 || s.Tier != quiz.TierReview {
		t.Errorf("Summary() = %+v", s)
	}
	if tracker.Points("Training") != 4 || !tracker.IsTopicCompleted("Training") {
		t.Errorf("tracker points = %d, completed = %v", tracker.Points("Training"), tracker.IsTopicCompleted("Training"))
	}
	if tracker.Attempts("Training", 0) != 2 {
		t.Errorf("Attempts() = %d, want 2", tracker.Attempts("Training", 0))
	}

	q.Restart()
	if q.Done() || q.Position() != 0 {
		t.Error("Restart() should go back to the first question")
	}
	if tracker.Points("Training") != 4 {
		t.Error("Restart() must keep topic points")
	}
}

func TestSummaryTiers(t *testing.T) {
	q, _ := newQuiz(t)
	ctx := context.Background()
	for !q.Done() {
		item, _ := q.Current()
		if _, err := q.Submit(ctx, item.Question.Choice.CorrectAnswer); err != nil {
			t.Fatal(err)
		}
		if err := q.Next(); err != nil {
			t.Fatal(err)
		}
	}
	if s := q.Summary(); s.Tier != quiz.TierPerfect || s.Percent != 100 {
		t.Errorf("Summary() = %+v, want perfect", s)
	}
}
