// Package progress keeps one learner's scores, points and completion state.
package progress

import (
	"log/slog"
	"math"

	"github.com/pavelanni/lecturetutor/internal/catalog"
	"github.com/pavelanni/lecturetutor/internal/model"
	"github.com/pavelanni/lecturetutor/internal/scoring"
)

type questionKey struct {
	topic    string
	question int
}

// TopicStatus is a read-only snapshot of one topic's progress.
type TopicStatus struct {
	Title     string
	Required  bool
	Points    int
	Core      int
	Total     int
	Percent   int
	Completed bool
}

// Summary is a snapshot of the session-wide counters.
type Summary struct {
	CompletedTopics int
	CoreTopics      int
	Messages        int
	Questions       int
	CorrectAnswers  int
	Points          int
	TotalPoints     int
}

// Tracker is the progress state of a single learner session.
// It is not safe for concurrent use.
type Tracker struct {
	order    []string
	required map[string]bool
	core     map[string]int
	total    map[string]int

	points     map[string]int
	chatPoints map[string]int
	scores     map[questionKey]int
	attempts   map[questionKey]int
	completed  map[string]bool

	completedCount int
	messageCount   int
	questionCount  int
	correctCount   int
}

// New creates a tracker for the given topics with every counter at zero.
func New(topics []model.Topic) *Tracker {
	t := &Tracker{
		order:    make([]string, 0, len(topics)),
		required: make(map[string]bool, len(topics)),
		core:     make(map[string]int, len(topics)),
		total:    make(map[string]int, len(topics)),
	}
	for _, topic := range topics {
		t.order = append(t.order, topic.Title)
		t.required[topic.Title] = topic.Required
		t.core[topic.Title] = catalog.CorePoints(topic)
		t.total[topic.Title] = catalog.TotalPoints(topic)
	}
	t.Reset()
	return t
}

// Reset clears all progress for the session.
func (t *Tracker) Reset() {
	t.points = make(map[string]int, len(t.order))
	t.chatPoints = make(map[string]int)
	t.scores = make(map[questionKey]int)
	t.attempts = make(map[questionKey]int)
	t.completed = make(map[string]bool, len(t.order))
	for _, title := range t.order {
		t.points[title] = 0
		t.completed[title] = false
	}
	t.completedCount = 0
	t.messageCount = 0
	t.questionCount = 0
	t.correctCount = 0
}

func (t *Tracker) known(topic string) bool {
	_, ok := t.total[topic]
	if !ok {
		slog.Warn("progress update for unknown topic", "topic", topic)
	}
	return ok
}

// RecordScore stores the result of answering question qi of a topic. The best
// score per question is kept and a failed result counts as an attempt. It
// reports whether the topic became completed by this call.
func (t *Tracker) RecordScore(topic string, qi int, res scoring.Result) bool {
	if !t.known(topic) {
		return false
	}
	k := questionKey{topic, qi}
	t.scores[k] = max(t.scores[k], res.Points)
	if !res.IsCorrect {
		t.attempts[k]++
	}
	return t.recompute(topic)
}

// ApplyChatGrade adds the verdict on a discussion exchange to the counters and
// to the topic's points. It reports whether the topic became completed.
func (t *Tracker) ApplyChatGrade(topic string, g scoring.ChatGrade) bool {
	if !t.known(topic) {
		return false
	}
	switch g.Classification {
	case scoring.ClassQuestion:
		t.questionCount++
	case scoring.ClassAnswer:
		if g.Points > 0 {
			t.correctCount++
		}
	}
	if g.Points <= 0 {
		return false
	}
	t.chatPoints[topic] = min(t.total[topic], t.chatPoints[topic]+g.Points)
	return t.recompute(topic)
}

// recompute derives the topic's points from its best question scores plus
// discussion credit, capped at the topic total.
func (t *Tracker) recompute(topic string) bool {
	sum := t.chatPoints[topic]
	for k, v := range t.scores {
		if k.topic == topic {
			sum += v
		}
	}
	return t.setPoints(topic, min(sum, t.total[topic]))
}

// setPoints stores the topic's points and fires completion at most once.
// A topic without core points needs at least one earned point.
func (t *Tracker) setPoints(topic string, points int) bool {
	t.points[topic] = points
	if !t.required[topic] || t.completed[topic] || points < t.core[topic] || points <= 0 {
		return false
	}
	t.completed[topic] = true
	t.completedCount++
	slog.Info("topic completed", "topic", topic, "points", points, "core", t.core[topic])
	return true
}

// IsTopicCompleted reports whether the topic's completion has fired.
func (t *Tracker) IsTopicCompleted(topic string) bool {
	return t.completed[topic]
}

// Points returns the topic's current points.
func (t *Tracker) Points(topic string) int {
	return t.points[topic]
}

// ProgressPercent returns the share of core points earned, capped at 100.
// Topics without core points are at 100 once anything is earned.
func (t *Tracker) ProgressPercent(topic string) int {
	return percent(t.points[topic], t.core[topic])
}

func percent(earned, core int) int {
	if core <= 0 {
		if earned > 0 {
			return 100
		}
		return 0
	}
	return min(100, int(math.Round(100*float64(earned)/float64(core))))
}

// Attempts returns the number of failed attempts at question qi.
func (t *Tracker) Attempts(topic string, qi int) int {
	return t.attempts[questionKey{topic, qi}]
}

// BestScore returns the best score recorded for question qi.
func (t *Tracker) BestScore(topic string, qi int) (int, bool) {
	v, ok := t.scores[questionKey{topic, qi}]
	return v, ok
}

// CountMessage records one learner chat message.
func (t *Tracker) CountMessage() { t.messageCount++ }

// ResetMessages zeroes the chat message counter.
func (t *Tracker) ResetMessages() { t.messageCount = 0 }

// RestartTopic clears the topic's points, scores, attempts and completion.
func (t *Tracker) RestartTopic(topic string) {
	if !t.known(topic) {
		return
	}
	for k := range t.scores {
		if k.topic == topic {
			delete(t.scores, k)
		}
	}
	for k := range t.attempts {
		if k.topic == topic {
			delete(t.attempts, k)
		}
	}
	delete(t.chatPoints, topic)
	t.points[topic] = 0
	if t.completed[topic] {
		t.completed[topic] = false
		t.completedCount--
	}
}

// Status returns a snapshot of one topic.
func (t *Tracker) Status(topic string) TopicStatus {
	return TopicStatus{
		Title:     topic,
		Required:  t.required[topic],
		Points:    t.points[topic],
		Core:      t.core[topic],
		Total:     t.total[topic],
		Percent:   t.ProgressPercent(topic),
		Completed: t.completed[topic],
	}
}

// Statuses returns a snapshot of every topic in catalog order.
func (t *Tracker) Statuses() []TopicStatus {
	out := make([]TopicStatus, 0, len(t.order))
	for _, title := range t.order {
		out = append(out, t.Status(title))
	}
	return out
}

// Summary returns the session-wide counters.
func (t *Tracker) Summary() Summary {
	s := Summary{
		CompletedTopics: t.completedCount,
		Messages:        t.messageCount,
		Questions:       t.questionCount,
		CorrectAnswers:  t.correctCount,
	}
	for _, title := range t.order {
		if t.required[title] {
			s.CoreTopics++
		}
		s.Points += t.points[title]
		s.TotalPoints += t.total[title]
	}
	return s
}
