package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/lecturetutor/internal/discussion"
	"github.com/pavelanni/lecturetutor/internal/handler/views"
	appI18n "github.com/pavelanni/lecturetutor/internal/i18n"
	"github.com/pavelanni/lecturetutor/internal/llm/prompts"
	"github.com/pavelanni/lecturetutor/internal/model"
	"github.com/pavelanni/lecturetutor/internal/scoring"
	"github.com/pavelanni/lecturetutor/internal/transcript"
)

func appT(r *http.Request, msgID string) string {
	return appI18n.T(r.Context(), msgID)
}

func appTd(r *http.Request, msgID string, data map[string]any) string {
	return appI18n.Td(r.Context(), msgID, data)
}

func (h *Handler) handleLearn(w http.ResponseWriter, r *http.Request, l *learner) {
	view, err := h.topicView(l.selected)
	if err != nil {
		l.selected = 0
		view, _ = h.topicView(0)
	}
	title := view.Topic.Title

	d := views.LearnData{
		VideoURL: h.config.VideoURL,
		Seek:     l.seek,
		Summary:  l.tracker.Summary(),
		Selected: view,
		Status:   l.tracker.Status(title),
		Tab:      r.URL.Query().Get("tab"),
		ChatOpen: l.chat.Topic() == title,
		Notice:   l.takeNotice(),
	}
	for i, t := range h.catalog.Topics() {
		d.Topics = append(d.Topics, views.TopicRow{Index: i, Start: t.StartTimestamp, Status: l.tracker.Status(t.Title)})
	}
	for i, q := range view.Topic.Questions {
		row := views.QuestionRow{Index: i, Question: q, Attempts: l.tracker.Attempts(title, i)}
		row.Best, row.Scored = l.tracker.BestScore(title, i)
		if res, ok := l.answers[answerKey{title, i}]; ok {
			row.Last = &res
		}
		d.Questions = append(d.Questions, row)
		d.HasQuiz = d.HasQuiz || q.IsChoice()
	}
	if d.ChatOpen {
		d.Chat = l.chat.Visible()
		d.Prompt = l.chat.Prompt().Text
	} else if p, err := discussion.BuildPrompt(h.prompts.Template(prompts.Discussion), view); err == nil {
		d.Prompt = p.Text
	}

	h.render(w, r, http.StatusOK, views.LearnPage(d))
}

// selectTopic makes view the learner's topic. A discussion about another
// topic is closed.
func selectTopic(l *learner, view model.TopicView) {
	if t := l.chat.Topic(); t != "" && t != view.Topic.Title {
		l.chat.Close()
	}
	l.selected = view.Index
}

func (h *Handler) handleSelectTopic(w http.ResponseWriter, r *http.Request, l *learner) {
	view, ok := h.topicParam(w, r)
	if !ok {
		return
	}
	selectTopic(l, view)
	l.seek, _ = transcript.ParseSeconds(view.Topic.StartTimestamp.String())
	h.redirect(w, r, "/learn")
}

// handleSeek selects the topic and moves the video to the posted timestamp,
// or to the topic start.
func (h *Handler) handleSeek(w http.ResponseWriter, r *http.Request, l *learner) {
	view, ok := h.topicParam(w, r)
	if !ok {
		return
	}
	at := r.FormValue("at")
	if at == "" {
		at = view.Topic.StartTimestamp.String()
	}
	seconds, err := transcript.ParseSeconds(at)
	if err != nil {
		l.flash(views.NoticeError, err.Error())
		h.redirect(w, r, "/learn")
		return
	}
	selectTopic(l, view)
	l.seek = seconds
	h.redirect(w, r, "/learn")
}

func (h *Handler) handleRestartTopic(w http.ResponseWriter, r *http.Request, l *learner) {
	view, ok := h.topicParam(w, r)
	if !ok {
		return
	}
	title := view.Topic.Title
	l.tracker.RestartTopic(title)
	for k := range l.answers {
		if k.topic == title {
			delete(l.answers, k)
		}
	}
	if l.quiz != nil && l.quiz.Topic() == title {
		l.quiz = nil
	}
	if l.chat.Topic() == title {
		l.chat.Close()
	}
	selectTopic(l, view)
	slog.Info("topic restarted", "topic", title)
	l.flash(views.NoticeInfo, appTd(r, "TopicRestarted", map[string]any{"Title": title}))
	h.redirect(w, r, "/learn")
}

// handleAnswer grades a free-text answer to a topic question.
func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request, l *learner) {
	view, ok := h.topicParam(w, r)
	if !ok {
		return
	}
	qi, err := strconv.Atoi(chi.URLParam(r, "question"))
	if err != nil || qi < 0 || qi >= len(view.Topic.Questions) {
		http.Error(w, "invalid question", http.StatusBadRequest)
		return
	}
	q := view.Topic.Questions[qi]
	if q.IsChoice() {
		http.Error(w, "multiple-choice questions are answered in the quiz", http.StatusBadRequest)
		return
	}
	title := view.Topic.Title
	selectTopic(l, view)

	res, err := h.engine.Score(r.Context(), view, q, r.FormValue("answer"), l.tracker.Attempts(title, qi))
	switch {
	case errors.Is(err, scoring.ErrEmptyAnswer):
		l.flash(views.NoticeError, appT(r, "EmptyAnswer"))
	case errors.Is(err, scoring.ErrJudgeUnavailable):
		slog.Error("grading failed", "topic", title, "question", qi, "error", err)
		l.flash(views.NoticeError, appT(r, "JudgeUnavailable"))
	case err != nil:
		slog.Error("grading failed", "topic", title, "question", qi, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	default:
		l.answers[answerKey{title, qi}] = res
		if l.tracker.RecordScore(title, qi, res) {
			l.flash(views.NoticeSuccess, appTd(r, "TopicCompleted", map[string]any{"Title": title}))
		}
	}
	h.redirect(w, r, "/learn?tab="+views.TabQuestions)
}

func (h *Handler) handleDiscussionStart(w http.ResponseWriter, r *http.Request, l *learner) {
	view, err := h.topicView(l.selected)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if _, err := l.chat.Start(r.Context(), view); err != nil {
		h.flashTutorError(r, l, err)
	}
	h.redirect(w, r, "/learn")
}

func (h *Handler) handleDiscussionPractice(w http.ResponseWriter, r *http.Request, l *learner) {
	if _, err := l.chat.Practice(r.Context()); err != nil {
		h.flashTutorError(r, l, err)
	}
	h.redirect(w, r, "/learn")
}

func (h *Handler) handleDiscussionMessage(w http.ResponseWriter, r *http.Request, l *learner) {
	text := strings.TrimSpace(r.FormValue("message"))
	if text == "" {
		l.flash(views.NoticeError, appT(r, "EmptyMessage"))
		h.redirect(w, r, "/learn")
		return
	}

	reply, err := l.chat.Respond(r.Context(), text)
	if err != nil {
		h.flashTutorError(r, l, err)
		h.redirect(w, r, "/learn")
		return
	}
	switch {
	case reply.Completed:
		l.flash(views.NoticeSuccess, appTd(r, "TopicCompleted", map[string]any{"Title": l.chat.Topic()}))
	case reply.Grade != nil && reply.Grade.Points > 0:
		l.flash(views.NoticeInfo, appTd(r, "ChatPoints", map[string]any{"Points": reply.Grade.Points}))
	}
	h.redirect(w, r, "/learn")
}

func (h *Handler) flashTutorError(r *http.Request, l *learner, err error) {
	switch {
	case errors.Is(err, discussion.ErrNotStarted):
		l.flash(views.NoticeError, appT(r, "StartDiscussionFirst"))
	case errors.Is(err, discussion.ErrUnavailable):
		l.flash(views.NoticeError, appT(r, "TutorApology"))
	default:
		slog.Error("discussion failed", "error", err)
		l.flash(views.NoticeError, err.Error())
	}
}
