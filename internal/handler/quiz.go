package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pavelanni/lecturetutor/internal/handler/views"
	"github.com/pavelanni/lecturetutor/internal/model"
	"github.com/pavelanni/lecturetutor/internal/quiz"
)

// quizFor returns the learner's quiz on the topic, starting one if needed.
func (h *Handler) quizFor(l *learner, view model.TopicView) *quiz.Quiz {
	if l.quiz == nil || l.quiz.Topic() != view.Topic.Title {
		l.quiz = quiz.New(view, h.engine, l.tracker)
	}
	selectTopic(l, view)
	return l.quiz
}

func quizPath(view model.TopicView) string {
	return fmt.Sprintf("/topics/%d/quiz", view.Index)
}

func (h *Handler) handleQuizPage(w http.ResponseWriter, r *http.Request, l *learner) {
	view, ok := h.topicParam(w, r)
	if !ok {
		return
	}
	q := h.quizFor(l, view)
	d := views.QuizData{
		TopicIndex: view.Index,
		Topic:      view.Topic.Title,
		Len:        q.Len(),
		Position:   q.Position(),
		Done:       q.Done(),
		Notice:     l.takeNotice(),
	}
	if item, ok := q.Current(); ok {
		d.Item = item
		d.Solved = q.Solved()
		d.Result = q.LastResult()
	}
	if d.Done {
		d.Summary = q.Summary()
	}
	h.render(w, r, http.StatusOK, views.QuizPage(d))
}

func (h *Handler) handleQuizAnswer(w http.ResponseWriter, r *http.Request, l *learner) {
	view, ok := h.topicParam(w, r)
	if !ok {
		return
	}
	q := h.quizFor(l, view)
	title := view.Topic.Title
	wasCompleted := l.tracker.IsTopicCompleted(title)
	_, err := q.Submit(r.Context(), r.FormValue("option"))
	switch {
	case errors.Is(err, quiz.ErrNoSelection):
		l.flash(views.NoticeError, appT(r, "SelectAnswerFirst"))
	case errors.Is(err, quiz.ErrFinished):
	case err != nil:
		slog.Error("quiz answer failed", "topic", title, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	default:
		if !wasCompleted && l.tracker.IsTopicCompleted(title) {
			l.flash(views.NoticeSuccess, appTd(r, "TopicCompleted", map[string]any{"Title": title}))
		}
	}
	h.redirect(w, r, quizPath(view))
}

func (h *Handler) handleQuizNext(w http.ResponseWriter, r *http.Request, l *learner) {
	view, ok := h.topicParam(w, r)
	if !ok {
		return
	}
	if err := h.quizFor(l, view).Next(); errors.Is(err, quiz.ErrNotAnswered) {
		l.flash(views.NoticeError, appT(r, "AnswerCorrectlyFirst"))
	}
	h.redirect(w, r, quizPath(view))
}

func (h *Handler) handleQuizRestart(w http.ResponseWriter, r *http.Request, l *learner) {
	view, ok := h.topicParam(w, r)
	if !ok {
		return
	}
	h.quizFor(l, view).Restart()
	h.redirect(w, r, quizPath(view))
}
