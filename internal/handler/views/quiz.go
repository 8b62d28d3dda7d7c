package views

import (
	"fmt"

	"github.com/a-h/templ"

	"github.com/pavelanni/lecturetutor/internal/quiz"
	"github.com/pavelanni/lecturetutor/internal/scoring"
)

// QuizData is the state of the quiz page.
type QuizData struct {
	TopicIndex int
	Topic      string
	Len        int
	Position   int
	Item       quiz.Item
	Done       bool
	Solved     bool
	Result     *scoring.Result
	Summary    quiz.Summary
	Notice     *Notice
}

var tierLabels = map[quiz.Tier]string{
	quiz.TierPerfect:   "TierPerfect",
	quiz.TierExcellent: "TierExcellent",
	quiz.TierGood:      "TierGood",
	quiz.TierReview:    "TierReview",
}

// QuizPage shows the current quiz question or the final summary.
func QuizPage(d QuizData) templ.Component {
	return page("TakeQuiz", func(h *html) {
		base := fmt.Sprintf("/topics/%d", d.TopicIndex)
		h.notice(d.Notice)
		h.raw(`<h1>`)
		h.text(d.Topic)
		h.raw(`</h1>`)

		switch {
		case d.Len == 0:
			h.raw(`<p>`)
			h.t("NoQuizQuestions")
			h.raw(`</p>`)
		case d.Done:
			s := d.Summary
			h.raw(`<h2>`)
			h.t("QuizDone")
			h.raw(`</h2><p>`)
			h.td("QuizScore", map[string]any{"Correct": s.FirstTry, "Total": s.Total, "Percent": s.Percent})
			h.raw(`</p><p>`)
			h.t(tierLabels[s.Tier])
			h.raw(`</p>`)
			h.postButton(base+"/quiz/restart", "TryAgain", "primary")
		default:
			quizQuestion(h, d, base)
		}

		h.raw(`<p><a href="`, h.url("/learn"), `">`)
		h.t("BackToTopic")
		h.raw(`</a></p>`)
	})
}

func quizQuestion(h *html, d QuizData, base string) {
	q := d.Item.Question
	h.raw(`<p>`)
	h.td("QuestionNofM", map[string]any{"N": d.Position + 1, "M": d.Len})
	h.raw(`</p><h2>`)
	h.text(q.Text)
	h.raw(`</h2>`)
	if d.Result != nil {
		result(h, *d.Result, q)
	}
	if d.Solved {
		h.postButton(base+"/quiz/next", "NextQuestion", "primary")
		return
	}
	h.raw(`<form method="post" action="`, h.url(base+"/quiz/answer"), `">`)
	h.csrfField()
	if q.Choice != nil {
		for i, opt := range q.Choice.Options {
			id := fmt.Sprintf("opt%d", i)
			h.raw(`<p><input type="radio" name="option" id="`, id, `" value="`, templ.EscapeString(opt), `"> <label for="`, id, `">`)
			h.text(opt)
			h.raw(`</label></p>`)
		}
	}
	h.raw(`<button type="submit">`)
	h.t("Submit")
	h.raw(`</button></form>`)
}
