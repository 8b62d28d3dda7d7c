package views

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/pavelanni/lecturetutor/internal/model"
	"github.com/pavelanni/lecturetutor/internal/progress"
	"github.com/pavelanni/lecturetutor/internal/scoring"
	"github.com/pavelanni/lecturetutor/internal/transcript"
)

// Tabs of the topic details panel.
const (
	TabOverview   = "overview"
	TabQuestions  = "questions"
	TabTranscript = "transcript"
	TabPrompt     = "prompt"
)

var tabs = []struct{ id, label string }{
	{TabOverview, "TabOverview"},
	{TabQuestions, "TabQuestions"},
	{TabTranscript, "TabTranscript"},
	{TabPrompt, "TabPrompt"},
}

// TopicRow is one line of the topic table.
type TopicRow struct {
	Index  int
	Start  model.Timestamp
	Status progress.TopicStatus
}

// QuestionRow is a topic question with the learner's record on it.
type QuestionRow struct {
	Index    int
	Question model.Question
	Best     int
	Scored   bool
	Attempts int
	Last     *scoring.Result
}

// LearnData is everything the learn page shows.
type LearnData struct {
	VideoURL string
	Seek     int // seconds

	Summary progress.Summary
	Topics  []TopicRow

	Selected  model.TopicView
	Status    progress.TopicStatus
	Tab       string
	Questions []QuestionRow
	HasQuiz   bool
	Prompt    string

	// Chat is shown only when the discussion is about the selected topic.
	ChatOpen bool
	Chat     []model.ChatTurn

	Notice *Notice
}

// WelcomePage introduces the tutor.
func WelcomePage(topics, coreTopics int, notice *Notice) templ.Component {
	return page("WelcomeHeading", func(h *html) {
		h.notice(notice)
		h.raw(`<h1>`)
		h.t("WelcomeHeading")
		h.raw(`</h1><p>`)
		h.t("WelcomeIntro")
		h.raw(`</p><p>`)
		h.td("WelcomeTopics", map[string]any{"Topics": topics, "Core": coreTopics})
		h.raw(`</p><p><a class="button" href="`, h.url("/learn"), `">`)
		h.t("StartLearning")
		h.raw(`</a></p>`)
	})
}

// LearnPage is the main learning view.
func LearnPage(d LearnData) templ.Component {
	return page("NavLearn", func(h *html) {
		h.notice(d.Notice)
		h.raw(`<div class="layout">`)
		sidebar(h, d)
		h.raw(`<section>`)
		video(h, d.VideoURL, d.Seek)
		topicTable(h, d)
		topicDetails(h, d)
		chat(h, d)
		h.raw(`</section></div>`)
	})
}

func sidebar(h *html, d LearnData) {
	s := d.Summary
	h.raw(`<aside><h3>`)
	h.t("Progress")
	h.raw(`</h3><p>`)
	h.td("CompletedCoreTopics", map[string]any{"Done": s.CompletedTopics, "Total": s.CoreTopics})
	h.raw(`</p><p>`)
	h.text(tp(h, "MessagesSent", s.Messages))
	h.raw(`</p><p>`)
	h.td("QuestionsAnswered", map[string]any{"Count": s.Questions})
	h.raw(`</p><p>`)
	h.td("CorrectAnswers", map[string]any{"Count": s.CorrectAnswers})
	h.raw(`</p><p>`)
	h.td("PointsOf", map[string]any{"Points": s.Points, "Total": s.TotalPoints})
	h.raw(`</p>`)
	h.postButton("/session/reset", "ResetSession", "secondary")
	h.raw(`</aside>`)
}

// video embeds the lecture starting at seek seconds.
func video(h *html, url string, seek int) {
	if url == "" {
		return
	}
	src := url
	if strings.Contains(url, "youtube.com/embed/") {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		src = url + sep + "start=" + strconv.Itoa(seek)
		h.raw(`<iframe class="video" width="100%" height="420" allowfullscreen src="`, templ.EscapeString(src), `"></iframe>`)
		return
	}
	if seek > 0 {
		src = fmt.Sprintf("%s#t=%d", url, seek)
	}
	h.raw(`<video controls preload="metadata" src="`, templ.EscapeString(src), `"></video>`)
}

func topicTable(h *html, d LearnData) {
	h.raw(`<h2>`)
	h.t("Topics")
	h.raw(`</h2><table><thead><tr><th>`)
	h.t("ColTopic")
	h.raw(`</th><th>`)
	h.t("ColStart")
	h.raw(`</th><th>`)
	h.t("ColPoints")
	h.raw(`</th><th>`)
	h.t("ColStatus")
	h.raw(`</th><th></th></tr></thead><tbody>`)
	for _, row := range d.Topics {
		if row.Index == d.Selected.Index {
			h.raw(`<tr class="selected">`)
		} else {
			h.raw(`<tr>`)
		}
		h.raw(`<td>`)
		h.text(row.Status.Title)
		h.raw(` <span class="badge">`)
		if row.Status.Required {
			h.t("Core")
		} else {
			h.t("Optional")
		}
		h.raw(`</span></td><td>`)
		h.text(timestampLabel(row.Start))
		h.rawf(`</td><td>%d / %d</td><td>`, row.Status.Points, row.Status.Total)
		switch {
		case row.Status.Completed:
			h.raw(`<span class="badge badge-done">`)
			h.t("StatusCompleted")
			h.raw(`</span>`)
		case row.Status.Points > 0:
			h.td("StatusInProgress", map[string]any{"Percent": row.Status.Percent})
		default:
			h.t("StatusNotStarted")
		}
		h.raw(`</td><td>`)
		h.postButton(fmt.Sprintf("/topics/%d/select", row.Index), "Select", "link")
		h.raw(` `)
		h.postButton(fmt.Sprintf("/topics/%d/seek", row.Index), "Watch", "link")
		h.raw(`</td></tr>`)
	}
	h.raw(`</tbody></table>`)
}

func topicDetails(h *html, d LearnData) {
	t := d.Selected.Topic
	base := fmt.Sprintf("/topics/%d", d.Selected.Index)
	h.raw(`<h2>`)
	h.text(t.Title)
	h.raw(`</h2><p>`)
	end := "…"
	if d.Selected.End.IsSet() {
		end = timestampLabel(d.Selected.End)
	}
	h.text(timestampLabel(t.StartTimestamp) + " - " + end)
	h.raw(` · `)
	h.td("TopicProgress", map[string]any{"Points": d.Status.Points, "Core": d.Status.Core, "Percent": d.Status.Percent})
	h.raw(`</p><p>`)
	h.postButton(base+"/restart", "RestartTopic", "secondary")
	if d.HasQuiz {
		h.raw(` <a href="`, h.url(base+"/quiz"), `">`)
		h.t("TakeQuiz")
		h.raw(`</a>`)
	}
	h.raw(`</p><div class="tabs">`)
	for _, tab := range tabs {
		class := ""
		if tab.id == d.Tab {
			class = "active"
		}
		h.raw(`<a class="`, class, `" href="`, h.url("/learn?tab="+tab.id), `">`)
		h.t(tab.label)
		h.raw(`</a>`)
	}
	h.raw(`</div>`)

	switch d.Tab {
	case TabQuestions:
		questionsTab(h, d, base)
	case TabTranscript:
		if d.Selected.Excerpt == "" {
			h.raw(`<p>`)
			h.t("NoTranscript")
			h.raw(`</p>`)
		} else {
			h.raw(`<pre>`)
			h.text(d.Selected.Excerpt)
			h.raw(`</pre>`)
		}
	case TabPrompt:
		h.raw(`<pre>`)
		h.text(d.Prompt)
		h.raw(`</pre>`)
	default:
		overviewTab(h, d, base)
	}
}

func overviewTab(h *html, d LearnData, base string) {
	t := d.Selected.Topic
	if len(t.LearningObjectives) > 0 {
		h.raw(`<h3>`)
		h.t("LearningObjectives")
		h.raw(`</h3><ul>`)
		for _, o := range t.LearningObjectives {
			h.raw(`<li>`)
			h.text(o)
			h.raw(`</li>`)
		}
		h.raw(`</ul>`)
	}
	if t.Summary != "" {
		h.raw(`<h3>`)
		h.t("Summary")
		h.raw(`</h3><p>`)
		h.text(t.Summary)
		h.raw(`</p>`)
	}
	if len(t.DetailedContent) > 0 {
		h.raw(`<h3>`)
		h.t("DetailedContent")
		h.raw(`</h3><ul>`)
		for _, c := range t.DetailedContent {
			h.raw(`<li>`)
			seekForm(h, base, c.Timestamp)
			h.raw(` `)
			h.text(c.Content)
			h.raw(`</li>`)
		}
		h.raw(`</ul>`)
	}
}

// seekForm renders a timestamp that jumps the video when pressed.
func seekForm(h *html, base string, ts model.Timestamp) {
	h.raw(`<form method="post" class="inline" action="`, h.url(base+"/seek"), `">`)
	h.csrfField()
	h.raw(`<input type="hidden" name="at" value="`, templ.EscapeString(ts.String()), `"><button type="submit" class="link">`)
	h.text(timestampLabel(ts))
	h.raw(`</button></form>`)
}

// timestampLabel renders ts as MM:SS whether it was written that way or as
// seconds.
func timestampLabel(ts model.Timestamp) string {
	sec, err := transcript.ParseSeconds(ts.String())
	if err != nil {
		return ts.String()
	}
	return transcript.Format(sec)
}

func questionsTab(h *html, d LearnData, base string) {
	if len(d.Questions) == 0 {
		h.raw(`<p>`)
		h.t("NoQuestions")
		h.raw(`</p>`)
		return
	}
	h.raw(`<ol>`)
	for _, row := range d.Questions {
		q := row.Question
		h.raw(`<li><p>`)
		h.text(q.Text)
		h.rawf(` <span class="badge">%d</span>`, q.PointValue)
		if q.ReferenceTimestamp.IsSet() {
			h.raw(` `)
			seekForm(h, base, q.ReferenceTimestamp)
		}
		h.raw(`</p>`)
		if row.Scored {
			h.raw(`<p>`)
			h.td("BestScore", map[string]any{"Best": row.Best, "Max": q.PointValue, "Attempts": row.Attempts})
			h.raw(`</p>`)
		}
		if q.IsChoice() {
			h.raw(`<p><a href="`, h.url(base+"/quiz"), `">`)
			h.t("AnswerInQuiz")
			h.raw(`</a></p></li>`)
			continue
		}
		if row.Last != nil {
			result(h, *row.Last, q)
		}
		h.raw(`<form method="post" action="`, h.url(fmt.Sprintf("%s/questions/%d/answer", base, row.Index)), `">`)
		h.csrfField()
		h.raw(`<textarea name="answer" rows="4" cols="70" placeholder="`, templ.EscapeString(tr(h, "AnswerPlaceholder")), `"></textarea><br><button type="submit">`)
		h.t("Submit")
		h.raw(`</button></form></li>`)
	}
	h.raw(`</ol>`)
}

// result shows the outcome of an answer.
func result(h *html, res scoring.Result, q model.Question) {
	kind := NoticeError
	label := "Incorrect"
	if res.IsCorrect {
		kind, label = NoticeSuccess, "Correct"
	}
	h.raw(`<div class="notice notice-`, string(kind), `"><strong>`)
	h.t(label)
	h.raw(`</strong> `)
	h.td("PointsAwarded", map[string]any{"Points": res.Points, "Max": q.PointValue})
	if res.Feedback != "" {
		h.raw(`<p>`)
		h.text(res.Feedback)
		h.raw(`</p>`)
	}
	if res.Hint != "" {
		h.raw(`<p><em>`)
		h.t("Hint")
		h.raw(`:</em> `)
		h.text(res.Hint)
		h.raw(`</p>`)
	}
	if res.IsCorrect && q.Explanation != "" {
		h.raw(`<p><em>`)
		h.t("Explanation")
		h.raw(`:</em> `)
		h.text(q.Explanation)
		h.raw(`</p>`)
	}
	if res.Outcome == scoring.Degraded {
		h.raw(`<p><small>`)
		h.t("GradingDegraded")
		h.raw(`</small></p>`)
	}
	h.raw(`</div>`)
}

func chat(h *html, d LearnData) {
	h.raw(`<h2>`)
	h.t("Discussion")
	h.raw(`</h2><div class="chat">`)
	if !d.ChatOpen {
		h.postButton("/discussion/start", "StartDiscussion", "primary")
		h.raw(`</div>`)
		return
	}
	for _, turn := range d.Chat {
		h.raw(`<div class="turn turn-`, string(turn.Role), `"><strong>`)
		if turn.Role == model.RoleUser {
			h.t("You")
		} else {
			h.t("Tutor")
		}
		h.raw(`:</strong> `)
		h.text(turn.Content)
		h.raw(`</div>`)
	}
	h.raw(`<form method="post" action="`, h.url("/discussion/message"), `">`)
	h.csrfField()
	h.raw(`<textarea name="message" rows="3" cols="70" placeholder="`, templ.EscapeString(tr(h, "MessagePlaceholder")), `"></textarea><br><button type="submit">`)
	h.t("Send")
	h.raw(`</button></form>`)
	h.postButton("/discussion/practice", "StartPractice", "secondary")
	h.raw(`</div>`)
}
