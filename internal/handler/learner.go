package handler

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"sync"
	"time"

	"github.com/pavelanni/lecturetutor/internal/discussion"
	"github.com/pavelanni/lecturetutor/internal/handler/views"
	"github.com/pavelanni/lecturetutor/internal/progress"
	"github.com/pavelanni/lecturetutor/internal/quiz"
	"github.com/pavelanni/lecturetutor/internal/scoring"
)

const (
	learnerCookieName = "learner"
	learnerIdleTTL    = 12 * time.Hour
)

type answerKey struct {
	topic    string
	question int
}

// learner is the in-memory state of one browser session. mu serializes
// every interaction of the learner.
type learner struct {
	mu sync.Mutex

	tracker  *progress.Tracker
	chat     *discussion.Session
	quiz     *quiz.Quiz
	selected int
	seek     int
	answers  map[answerKey]scoring.Result
	notice   *views.Notice
	lastSeen time.Time
}

// flash stores a notice for the next page render.
func (l *learner) flash(kind views.NoticeKind, text string) {
	l.notice = &views.Notice{Kind: kind, Text: text}
}

// takeNotice returns and clears the pending notice.
func (l *learner) takeNotice() *views.Notice {
	n := l.notice
	l.notice = nil
	return n
}

type registry struct {
	mu       sync.Mutex
	learners map[string]*learner
	create   func() *learner
	now      func() time.Time
}

func newRegistry(create func() *learner) *registry {
	return &registry{learners: make(map[string]*learner), create: create, now: time.Now}
}

// get returns the learner for id, creating one when id is unknown. Learners
// idle for longer than learnerIdleTTL are dropped.
func (r *registry) get(id string) (*learner, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for k, l := range r.learners {
		if now.Sub(l.lastSeen) > learnerIdleTTL && l.mu.TryLock() {
			delete(r.learners, k)
			l.mu.Unlock()
		}
	}

	if l, ok := r.learners[id]; ok && id != "" {
		l.lastSeen = now
		return l, id, nil
	}
	id, err := newToken()
	if err != nil {
		return nil, "", err
	}
	l := r.create()
	l.lastSeen = now
	r.learners[id] = l
	return l, id, nil
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.learners)
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// learnerFor resolves the request's learner and refreshes its cookie.
func (h *Handler) learnerFor(w http.ResponseWriter, r *http.Request) (*learner, error) {
	var id string
	if c, err := r.Cookie(learnerCookieName); err == nil {
		id = c.Value
	}
	l, id, err := h.learners.get(id)
	if err != nil {
		return nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     learnerCookieName,
		Value:    id,
		Path:     h.cookiePath(),
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return l, nil
}
