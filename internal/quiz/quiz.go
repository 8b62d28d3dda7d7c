// Package quiz walks a learner through a topic's multiple-choice questions.
package quiz

import (
	"context"
	"errors"
	"math"

	"github.com/pavelanni/lecturetutor/internal/model"
	"github.com/pavelanni/lecturetutor/internal/progress"
	"github.com/pavelanni/lecturetutor/internal/scoring"
)

var (
	// ErrNoSelection is returned when an answer is submitted without an option.
	ErrNoSelection = errors.New("please select an answer before submitting")
	// ErrNotAnswered is returned by Next before the current question is answered correctly.
	ErrNotAnswered = errors.New("answer the current question correctly first")
	// ErrFinished is returned when the quiz has no current question.
	ErrFinished = errors.New("quiz finished")
)

// Tier grades the quiz as a whole.
type Tier string

const (
	TierPerfect   Tier = "perfect"
	TierExcellent Tier = "excellent"
	TierGood      Tier = "good"
	TierReview    Tier = "review"
)

// Item is a quiz question with its position in the topic.
type Item struct {
	Index    int // position in the topic's question list
	Question model.Question
}

// Summary describes a finished quiz. FirstTry counts questions answered
// correctly without a wrong attempt; Percent and Tier are based on it.
type Summary struct {
	Total    int
	FirstTry int
	Percent  int
	Tier     Tier
}

// Quiz is the state of one pass through a topic's MCQs.
type Quiz struct {
	view    model.TopicView
	engine  *scoring.Engine
	tracker *progress.Tracker

	items   []Item
	pos     int
	solved  map[int]bool
	missed  map[int]bool
	last    *scoring.Result
	lastPos int
}

// New selects the MCQ questions of the topic.
func New(view model.TopicView, engine *scoring.Engine, tracker *progress.Tracker) *Quiz {
	q := &Quiz{view: view, engine: engine, tracker: tracker}
	for i, question := range view.Topic.Questions {
		if question.IsChoice() {
			q.items = append(q.items, Item{Index: i, Question: question})
		}
	}
	q.Restart()
	return q
}

// Topic returns the title of the quizzed topic.
func (q *Quiz) Topic() string { return q.view.Topic.Title }

// Len returns the number of questions.
func (q *Quiz) Len() int { return len(q.items) }

// Position returns the 0-based index of the current question.
func (q *Quiz) Position() int { return q.pos }

// Current returns the current question.
func (q *Quiz) Current() (Item, bool) {
	if q.Done() {
		return Item{}, false
	}
	return q.items[q.pos], true
}

// Done reports whether every question has been passed.
func (q *Quiz) Done() bool { return q.pos >= len(q.items) }

// Solved reports whether the current question was answered correctly.
func (q *Quiz) Solved() bool { return q.solved[q.pos] }

// LastResult returns the result of the latest submission for the current
// question, or nil.
func (q *Quiz) LastResult() *scoring.Result {
	if q.last == nil || q.lastPos != q.pos {
		return nil
	}
	return q.last
}

// Submit grades the chosen option for the current question and records the
// result in the tracker.
func (q *Quiz) Submit(ctx context.Context, option string) (scoring.Result, error) {
	item, ok := q.Current()
	if !ok {
		return scoring.Result{}, ErrFinished
	}
	if option == "" {
		return scoring.Result{}, ErrNoSelection
	}

	topic := q.Topic()
	res, err := q.engine.Score(ctx, q.view, item.Question, option, q.tracker.Attempts(topic, item.Index))
	if err != nil {
		return scoring.Result{}, err
	}
	q.tracker.RecordScore(topic, item.Index, res)

	if res.IsCorrect {
		q.solved[q.pos] = true
	} else if !q.solved[q.pos] {
		q.missed[q.pos] = true
	}
	q.last, q.lastPos = &res, q.pos
	return res, nil
}

// Next moves on once the current question is solved.
func (q *Quiz) Next() error {
	if q.Done() {
		return ErrFinished
	}
	if !q.solved[q.pos] {
		return ErrNotAnswered
	}
	q.pos++
	return nil
}

// Restart goes back to the first question. Earned topic points are kept.
func (q *Quiz) Restart() {
	q.pos = 0
	q.solved = make(map[int]bool, len(q.items))
	q.missed = make(map[int]bool, len(q.items))
	q.last = nil
}

// Summary returns the quiz result.
func (q *Quiz) Summary() Summary {
	s := Summary{Total: len(q.items)}
	for i := range q.items {
		if q.solved[i] && !q.missed[i] {
			s.FirstTry++
		}
	}
	if s.Total > 0 {
		s.Percent = int(math.Round(100 * float64(s.FirstTry) / float64(s.Total)))
	}
	s.Tier = tierFor(s.Percent)
	return s
}

func tierFor(percent int) Tier {
	switch {
	case percent >= 100:
		return TierPerfect
	case percent >= 80:
		return TierExcellent
	case percent >= 60:
		return TierGood
	}
	return TierReview
}
