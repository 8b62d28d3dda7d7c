package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/lecturetutor/internal/catalog"
	appI18n "github.com/pavelanni/lecturetutor/internal/i18n"
	"github.com/pavelanni/lecturetutor/internal/llm"
	"github.com/pavelanni/lecturetutor/internal/model"
	"github.com/pavelanni/lecturetutor/internal/store"
	"github.com/pavelanni/lecturetutor/internal/transcript"
)

func TestMain(m *testing.M) {
	if err := appI18n.Init("en"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func testTopics() []model.Topic {
	return []model.Topic{
		{
			Title:              "Gathering data",
			Required:           true,
			StartTimestamp:     "00:00",
			Summary:            "Collect color and alcohol measurements.",
			LearningObjectives: []string{"Explain why data is needed"},
			Questions: []model.Question{
				{
					Text: "Which feature?", Type: model.TypeMCQ, PointValue: 2, Required: true,
					Hints:  []string{"Look at the color"},
					Choice: &model.Choice{Options: []string{"a", "b"}, CorrectAnswer: "a"},
				},
				{
					Text: "Why data?", Type: model.TypeOpen, PointValue: 3, Required: true,
					Rubric: &model.Rubric{SampleAnswer: "To learn."},
				},
			},
		},
		{
			Title:          "Training",
			StartTimestamp: "05:00",
			Questions: []model.Question{
				{Text: "What is a model?", Type: model.TypeShort, PointValue: 1, Rubric: &model.Rubric{}},
			},
		},
	}
}

type testEnv struct {
	t     *testing.T
	srv   *httptest.Server
	h     *Handler
	mock  *llm.Mock
	store *store.Store
}

func newTestEnv(t *testing.T, mock *llm.Mock) *testEnv {
	t.Helper()
	cat, err := catalog.New(testTopics())
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if _, err := st.ImportTopics("topics.json", []byte("v1"), cat.Topics()); err != nil {
		t.Fatalf("ImportTopics: %v", err)
	}

	h, err := New(Deps{
		Catalog:    cat,
		Transcript: transcript.New("(00:00) Welcome, we gather data. (05:00) Now we train."),
		LLM:        mock,
		Store:      st,
	}, model.AppConfig{VideoURL: "https://example.com/lecture.mp4"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r := chi.NewRouter()
	r.Use(appI18n.Middleware("en"))
	r.Use(h.BasePathMiddleware)
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testEnv{t: t, srv: srv, h: h, mock: mock, store: st}
}

// client is a browser session with its own cookies.
type client struct {
	env *testEnv
	c   *http.Client
}

func (e *testEnv) newClient() *client {
	jar, err := cookiejar.New(nil)
	if err != nil {
		e.t.Fatal(err)
	}
	return &client{env: e, c: &http.Client{Jar: jar}}
}

func (c *client) get(path string) (int, string) {
	c.env.t.Helper()
	resp, err := c.c.Get(c.env.srv.URL + path)
	if err != nil {
		c.env.t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

// post submits a form with the current CSRF token and follows redirects.
func (c *client) post(path string, form url.Values) (int, string) {
	c.env.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf_token", c.csrfToken())
	resp, err := c.c.PostForm(c.env.srv.URL+path, form)
	if err != nil {
		c.env.t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func (c *client) csrfToken() string {
	u, _ := url.Parse(c.env.srv.URL)
	for _, ck := range c.c.Jar.Cookies(u) {
		if ck.Name == csrfCookieName {
			return ck.Value
		}
	}
	c.get("/")
	for _, ck := range c.c.Jar.Cookies(u) {
		if ck.Name == csrfCookieName {
			return ck.Value
		}
	}
	c.env.t.Fatal("no CSRF cookie")
	return ""
}

func assertContains(t *testing.T, body string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(body, w) {
			t.Errorf("body does not contain %q", w)
		}
	}
}

func TestPages(t *testing.T) {
	env := newTestEnv(t, llm.NewMock())
	c := env.newClient()

	tests := []struct {
		path string
		want []string
	}{
		{"/", []string{"Lecture Tutor", "The lecture has 2 topics, 1 of them core."}},
		{"/learn", []string{"Gathering data", "Training", "Start discussion", "lecture.mp4", "Explain why data is needed"}},
		{"/learn?tab=transcript", []string{"Welcome, we gather data."}},
		{"/learn?tab=prompt", []string{"&#34;title&#34;: &#34;Gathering data&#34;"}},
		{"/learn?tab=questions", []string{"Which feature?", "Why data?", "Answer this question in the quiz"}},
		{"/bank", []string{"Which feature?", "What is a model?", "Showing 3 questions", "topics.json"}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			status, body := c.get(tt.path)
			if status != http.StatusOK {
				t.Fatalf("status = %d", status)
			}
			assertContains(t, body, tt.want...)
		})
	}
}

func TestCSRF(t *testing.T) {
	env := newTestEnv(t, llm.NewMock())
	c := env.newClient()
	c.get("/")

	resp, err := c.c.PostForm(env.srv.URL+"/session/reset", url.Values{})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("missing token: status = %d, want 403", resp.StatusCode)
	}

	resp, err = c.c.PostForm(env.srv.URL+"/session/reset", url.Values{"csrf_token": {"forged"}})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("forged token: status = %d, want 403", resp.StatusCode)
	}

	if status, _ := c.post("/session/reset", nil); status != http.StatusOK {
		t.Errorf("valid token: status = %d", status)
	}
}

func TestSelectAndSeek(t *testing.T) {
	env := newTestEnv(t, llm.NewMock())
	c := env.newClient()

	_, body := c.post("/topics/1/select", nil)
	assertContains(t, body, `<tr class="selected"><td>Training`, "lecture.mp4#t=300")

	_, body = c.post("/topics/0/seek", url.Values{"at": {"01:30"}})
	assertContains(t, body, `<tr class="selected"><td>Gathering data`, "lecture.mp4#t=90")

	_, body = c.post("/topics/0/seek", url.Values{"at": {"soon"}})
	assertContains(t, body, "invalid timestamp")

	if status, _ := c.post("/topics/9/select", nil); status != http.StatusNotFound {
		t.Errorf("unknown topic: status = %d, want 404", status)
	}
}

func TestDiscussion(t *testing.T) {
	mock := llm.NewMock(
		"Welcome! What is data?",
		"Right, data is recorded facts.",
		`{"score": 2, "feedback": "good", "user_input_classification": "answer"}`,
	)
	env := newTestEnv(t, mock)
	c := env.newClient()

	_, body := c.post("/discussion/start", nil)
	assertContains(t, body, "Welcome! What is data?", "Start practice")

	system := mock.Requests[0].Turns[0]
	if system.Role != model.RoleSystem || !strings.Contains(system.Content, `"title": "Gathering data"`) {
		t.Errorf("first turn is not the topic prompt: %+v", system)
	}

	_, body = c.post("/discussion/message", url.Values{"message": {"Facts we record"}})
	assertContains(t, body,
		"Right, data is recorded facts.",
		"You earned 2 points in the discussion.",
		"1 message sent",
		"Correct answers: 1",
		"2 / 5</td>",
	)

	_, body = c.post("/discussion/message", url.Values{"message": {"   "}})
	assertContains(t, body, "Please write a message first.")
	if len(mock.Requests) != 3 {
		t.Errorf("blank message reached the LLM: %d requests", len(mock.Requests))
	}
}

func TestTopicSwitchClosesDiscussion(t *testing.T) {
	mock := llm.NewMock(
		"Welcome to data.", "Good point.", `{"score": 0, "feedback": ""}`,
		"Welcome back.", "Noted.", `{"score": 0, "feedback": ""}`,
	)
	env := newTestEnv(t, mock)
	c := env.newClient()

	c.post("/discussion/start", nil)
	_, body := c.post("/discussion/message", url.Values{"message": {"hello"}})
	assertContains(t, body, "Good point.", "1 message sent")

	c.post("/topics/1/select", nil)
	_, body = c.post("/topics/0/select", nil)
	if strings.Contains(body, "Good point.") {
		t.Error("chat of the previous topic came back after switching topics")
	}
	assertContains(t, body, "0 messages sent", "Start discussion")

	c.post("/discussion/start", nil)
	_, body = c.post("/discussion/message", url.Values{"message": {"again"}})
	assertContains(t, body, "Noted.")

	_, body = c.post("/topics/0/restart", nil)
	if strings.Contains(body, "Noted.") {
		t.Error("restarting the topic should clear its chat")
	}
	assertContains(t, body, "0 messages sent", "Start discussion")
}

func TestDiscussionApology(t *testing.T) {
	mock := &llm.Mock{Errs: []error{errors.New("connection refused")}, Replies: []string{"Hello again"}}
	env := newTestEnv(t, mock)
	c := env.newClient()

	_, body := c.post("/discussion/start", nil)
	assertContains(t, body, "Sorry, I encountered an error while processing your message. Please try again.")
	if strings.Contains(body, `class="turn`) {
		t.Error("failed call must not add chat turns")
	}

	_, body = c.post("/discussion/start", nil)
	assertContains(t, body, "Hello again")
}

func TestOpenAnswer(t *testing.T) {
	mock := llm.NewMock(`{"score": 1, "feedback": "Partly right"}`, `{"score": 3, "feedback": "Well done"}`)
	env := newTestEnv(t, mock)
	c := env.newClient()

	_, body := c.post("/topics/0/questions/1/answer", url.Values{"answer": {""}})
	assertContains(t, body, "Please write an answer before submitting.")

	_, body = c.post("/topics/0/questions/1/answer", url.Values{"answer": {"To have examples"}})
	assertContains(t, body, "Not quite.", "Partly right", "1 of 3 points.", "failed attempts: 1")

	_, body = c.post("/topics/0/questions/1/answer", url.Values{"answer": {"To learn from examples"}})
	assertContains(t, body, "Correct!", "Well done", "Best score: 3 / 3")

	judge := mock.Last()
	if !judge.JSON || !strings.Contains(judge.Turns[0].Content, "<learner-answer>") {
		t.Errorf("unexpected judge request: %+v", judge)
	}

	if status, _ := c.post("/topics/0/questions/0/answer", url.Values{"answer": {"a"}}); status != http.StatusBadRequest {
		t.Errorf("MCQ via answer route: status = %d, want 400", status)
	}
}

func TestJudgeUnavailable(t *testing.T) {
	env := newTestEnv(t, &llm.Mock{Errs: []error{errors.New("timeout")}})
	c := env.newClient()

	_, body := c.post("/topics/0/questions/1/answer", url.Values{"answer": {"Because"}})
	assertContains(t, body, "The answer could not be graded right now.")
	if strings.Contains(body, "Best score") {
		t.Error("failed grading must not record a score")
	}
}

func TestQuiz(t *testing.T) {
	env := newTestEnv(t, llm.NewMock())
	c := env.newClient()

	_, body := c.get("/topics/0/quiz")
	assertContains(t, body, "Question 1 of 1", "Which feature?")

	_, body = c.post("/topics/0/quiz/answer", nil)
	assertContains(t, body, "Please select an answer before submitting.")

	_, body = c.post("/topics/0/quiz/next", nil)
	assertContains(t, body, "Answer the current question correctly first.")

	_, body = c.post("/topics/0/quiz/answer", url.Values{"option": {"b"}})
	assertContains(t, body, "Not quite.", "Look at the color")

	_, body = c.post("/topics/0/quiz/answer", url.Values{"option": {"a"}})
	assertContains(t, body, "Correct!", "Next question")

	_, body = c.post("/topics/0/quiz/next", nil)
	assertContains(t, body, "Quiz finished", "0 of 1 right on the first try (0%).", "Consider reviewing this topic.")

	_, body = c.post("/topics/0/quiz/restart", nil)
	assertContains(t, body, "Question 1 of 1")

	_, body = c.get("/learn")
	assertContains(t, body, "2 / 5</td>")

	_, body = c.post("/topics/0/restart", nil)
	assertContains(t, body, "0 / 5</td>", "was cleared")
}

func TestTopicCompletion(t *testing.T) {
	env := newTestEnv(t, llm.NewMock(`{"score": 3, "feedback": "ok"}`))
	c := env.newClient()

	c.post("/topics/0/quiz/answer", url.Values{"option": {"a"}})
	_, body := c.post("/topics/0/questions/1/answer", url.Values{"answer": {"To learn"}})
	assertContains(t, body, "completed!", "Core topics completed: 1 of 1")
}

func TestLearnersAreIsolated(t *testing.T) {
	env := newTestEnv(t, llm.NewMock("Hi there, first learner."))
	alice, bob := env.newClient(), env.newClient()

	_, body := alice.post("/discussion/start", nil)
	assertContains(t, body, "Hi there, first learner.")

	_, body = bob.get("/learn")
	if strings.Contains(body, "Hi there, first learner.") {
		t.Error("second learner sees the first learner's chat")
	}
	if n := env.h.learners.len(); n != 2 {
		t.Errorf("registry has %d learners, want 2", n)
	}

	_, body = alice.post("/session/reset", nil)
	assertContains(t, body, "Your session was reset.", "Start discussion")
}

func TestBankEditAndExport(t *testing.T) {
	env := newTestEnv(t, llm.NewMock())
	c := env.newClient()

	drafts, err := env.store.ListDrafts(model.DraftFilter{TopicTitle: "Gathering data"})
	if err != nil {
		t.Fatal(err)
	}
	open := drafts[1]
	path := fmt.Sprintf("/bank/%d", open.ID)

	_, body := c.get(path)
	assertContains(t, body, "Why data?", "To learn.")

	status, body := c.post(path, url.Values{"text": {"Why data?"}, "type": {"open"}, "point_value": {"0"}})
	if status != http.StatusUnprocessableEntity {
		t.Errorf("invalid draft: status = %d, want 422", status)
	}
	assertContains(t, body, "point_value must be positive")

	_, body = c.post(path, url.Values{
		"text":          {"Why collect data?"},
		"type":          {"open"},
		"point_value":   {"4"},
		"required":      {"yes"},
		"sample_answer": {"To learn patterns."},
	})
	assertContains(t, body, "Question saved.", "Why collect data?", "edited")

	_, body = c.get("/bank?type=mcq")
	assertContains(t, body, "Showing 1 question")

	if status, _ := c.get("/bank/9999"); status != http.StatusNotFound {
		t.Errorf("unknown draft: status = %d, want 404", status)
	}

	resp, err := c.c.Get(env.srv.URL + "/bank/export")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, store.ExportFileName) {
		t.Errorf("Content-Disposition = %q", cd)
	}
	var records []model.QuestionRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		t.Fatalf("export is not JSON: %v", err)
	}
	if len(records) != 3 || records[1].Question != "Why collect data?" || records[1].PointValue != 4 {
		t.Errorf("unexpected export: %+v", records)
	}
}

func TestQuestionFromForm(t *testing.T) {
	tests := []struct {
		name         string
		form         url.Values
		wantProblems int
		check        func(t *testing.T, q model.Question)
	}{
		{
			name: "mcq",
			form: url.Values{"text": {"Pick"}, "type": {"multiple-choice"}, "point_value": {"2"},
				"options": {"a\n\n b \n"}, "correct_answer": {"b"}, "hints": {"one\ntwo"}},
			check: func(t *testing.T, q model.Question) {
				if q.Type != model.TypeMCQ || len(q.Choice.Options) != 2 || q.Choice.Options[1] != "b" {
					t.Errorf("choice = %+v", q.Choice)
				}
				if len(q.Hints) != 2 {
					t.Errorf("hints = %v", q.Hints)
				}
			},
		},
		{
			name: "criteria",
			form: url.Values{"text": {"Explain"}, "type": {"short"}, "point_value": {"2"},
				"criteria": {"1 | mentions color\n1 | mentions alcohol"}},
			check: func(t *testing.T, q model.Question) {
				if len(q.Rubric.Criteria) != 2 || q.Rubric.Criteria[1].Criteria != "mentions alcohol" {
					t.Errorf("criteria = %+v", q.Rubric.Criteria)
				}
			},
		},
		{
			name:         "bad fields",
			form:         url.Values{"type": {"essay"}, "point_value": {"lots"}, "criteria": {"no separator"}},
			wantProblems: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			q, problems := questionFromForm(req)
			if len(problems) != tt.wantProblems {
				t.Errorf("problems = %v, want %d", problems, tt.wantProblems)
			}
			if tt.check != nil {
				tt.check(t, q)
			}
		})
	}
}

func TestRegistryDropsIdleLearners(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	reg := newRegistry(func() *learner { return &learner{} })
	reg.now = func() time.Time { return now }

	first, id, err := reg.get("")
	if err != nil {
		t.Fatal(err)
	}
	again, sameID, _ := reg.get(id)
	if again != first || sameID != id {
		t.Error("known id should return the same learner")
	}

	now = now.Add(learnerIdleTTL + time.Minute)
	if _, _, err := reg.get("unknown"); err != nil {
		t.Fatal(err)
	}
	if n := reg.len(); n != 1 {
		t.Errorf("registry has %d learners, want 1 after the idle one expired", n)
	}
	if l, newID, _ := reg.get(id); l == first || newID == id {
		t.Error("expired learner must not come back")
	}
}
