package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/lecturetutor/internal/catalog"
	"github.com/pavelanni/lecturetutor/internal/discussion"
	"github.com/pavelanni/lecturetutor/internal/handler/views"
	"github.com/pavelanni/lecturetutor/internal/llm"
	"github.com/pavelanni/lecturetutor/internal/llm/prompts"
	"github.com/pavelanni/lecturetutor/internal/model"
	"github.com/pavelanni/lecturetutor/internal/progress"
	"github.com/pavelanni/lecturetutor/internal/scoring"
	"github.com/pavelanni/lecturetutor/internal/store"
	"github.com/pavelanni/lecturetutor/internal/transcript"
)

// Deps are the collaborators of the HTTP handlers.
type Deps struct {
	Catalog *catalog.Catalog
	// Transcript may be nil, leaving every excerpt empty.
	Transcript *transcript.Index
	Prompts    *prompts.Set
	LLM        llm.Completer
	// Store backs the question bank pages; nil disables them.
	Store *store.Store
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	catalog    *catalog.Catalog
	transcript *transcript.Index
	prompts    *prompts.Set
	llm        llm.Completer
	engine     *scoring.Engine
	store      *store.Store
	config     model.AppConfig
	learners   *registry
}

// New creates a new Handler.
func New(deps Deps, cfg model.AppConfig) (*Handler, error) {
	if deps.Catalog == nil || deps.Catalog.Len() == 0 {
		return nil, errors.New("handler needs a non-empty topic catalog")
	}
	if deps.LLM == nil {
		return nil, errors.New("handler needs an LLM client")
	}
	if deps.Prompts == nil {
		deps.Prompts = prompts.Default()
	}
	h := &Handler{
		catalog:    deps.Catalog,
		transcript: deps.Transcript,
		prompts:    deps.Prompts,
		llm:        deps.LLM,
		engine:     scoring.NewEngine(deps.LLM, deps.Prompts),
		store:      deps.Store,
		config:     cfg,
	}
	h.learners = newRegistry(h.newLearner)
	return h, nil
}

func (h *Handler) newLearner() *learner {
	tracker := progress.New(h.catalog.Topics())
	return &learner{
		tracker: tracker,
		chat:    discussion.New(h.llm, h.engine, tracker, h.prompts.Template(prompts.Discussion)),
		answers: make(map[answerKey]scoring.Result),
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.csrfMiddleware)

		r.Get("/", h.withLearner(h.handleWelcome))
		r.Get("/learn", h.withLearner(h.handleLearn))
		r.Post("/session/reset", h.withLearner(h.handleResetSession))

		r.Route("/topics/{index}", func(r chi.Router) {
			r.Post("/select", h.withLearner(h.handleSelectTopic))
			r.Post("/seek", h.withLearner(h.handleSeek))
			r.Post("/restart", h.withLearner(h.handleRestartTopic))
			r.Post("/questions/{question}/answer", h.withLearner(h.handleAnswer))
			r.Get("/quiz", h.withLearner(h.handleQuizPage))
			r.Post("/quiz/answer", h.withLearner(h.handleQuizAnswer))
			r.Post("/quiz/next", h.withLearner(h.handleQuizNext))
			r.Post("/quiz/restart", h.withLearner(h.handleQuizRestart))
		})

		r.Post("/discussion/start", h.withLearner(h.handleDiscussionStart))
		r.Post("/discussion/message", h.withLearner(h.handleDiscussionMessage))
		r.Post("/discussion/practice", h.withLearner(h.handleDiscussionPractice))

		r.Get("/bank", h.handleBankList)
		r.Get("/bank/export", h.handleBankExport)
		r.Get("/bank/{draftID}", h.handleEditDraftPage)
		r.Post("/bank/{draftID}", h.handleUpdateDraft)
	})
}

// BasePathMiddleware stores the configured URL prefix in the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

type learnerHandler func(w http.ResponseWriter, r *http.Request, l *learner)

// withLearner resolves the learner and runs fn while holding its lock.
func (h *Handler) withLearner(fn learnerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, err := h.learnerFor(w, r)
		if err != nil {
			slog.Error("failed to resolve learner", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		l.mu.Lock()
		defer l.mu.Unlock()
		fn(w, r, l)
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, p string) {
	http.Redirect(w, r, h.path(p), http.StatusSeeOther)
}

// topicView resolves the topic at i. Transcript lookup problems leave the
// excerpt empty.
func (h *Handler) topicView(i int) (model.TopicView, error) {
	view, err := h.catalog.View(i, h.transcript)
	if err != nil {
		if _, atErr := h.catalog.At(i); atErr != nil {
			return view, atErr
		}
		slog.Warn("transcript lookup failed", "topic", view.Topic.Title, "error", err)
	}
	return view, nil
}

// topicParam reads the {index} URL parameter.
func (h *Handler) topicParam(w http.ResponseWriter, r *http.Request) (model.TopicView, bool) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "invalid topic index", http.StatusBadRequest)
		return model.TopicView{}, false
	}
	view, err := h.topicView(i)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return model.TopicView{}, false
	}
	return view, true
}

func (h *Handler) handleWelcome(w http.ResponseWriter, r *http.Request, l *learner) {
	h.render(w, r, http.StatusOK, views.WelcomePage(h.catalog.Len(), len(h.catalog.CoreTopics()), l.takeNotice()))
}

func (h *Handler) handleResetSession(w http.ResponseWriter, r *http.Request, l *learner) {
	fresh := h.newLearner()
	l.tracker = fresh.tracker
	l.chat = fresh.chat
	l.quiz = nil
	l.selected = 0
	l.seek = 0
	l.answers = fresh.answers
	slog.Info("learner session reset")
	l.flash(views.NoticeInfo, appT(r, "SessionReset"))
	h.redirect(w, r, "/learn")
}
