package views

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/pavelanni/lecturetutor/internal/model"
)

// BankData is the authoring list with its filter state.
type BankData struct {
	Drafts   []model.Draft
	Topics   []string
	Types    []string
	Topic    string
	Type     string
	Required string // "", "yes" or "no"
	Source   string
	Enabled  bool
	Notice   *Notice
}

// EditData is a draft being edited with the problems of the last save.
type EditData struct {
	Draft    model.Draft
	Problems []string
	Notice   *Notice
}

// BankPage lists the question drafts.
func BankPage(d BankData) templ.Component {
	return page("QuestionBank", func(h *html) {
		h.notice(d.Notice)
		h.raw(`<h1>`)
		h.t("QuestionBank")
		h.raw(`</h1>`)
		if !d.Enabled {
			h.raw(`<p>`)
			h.t("BankDisabled")
			h.raw(`</p>`)
			return
		}
		if d.Source != "" {
			h.raw(`<p>`)
			h.td("BankSource", map[string]any{"Source": d.Source})
			h.raw(`</p>`)
		}

		h.raw(`<form method="get" action="`, h.url("/bank"), `"><select name="topic"><option value="">`)
		h.t("AllTopics")
		h.raw(`</option>`)
		for _, t := range d.Topics {
			option(h, t, t, d.Topic)
		}
		h.raw(`</select> <select name="type"><option value="">`)
		h.t("AllTypes")
		h.raw(`</option>`)
		for _, t := range d.Types {
			option(h, t, t, d.Type)
		}
		h.raw(`</select> <select name="required">`)
		option(h, "", tr(h, "All"), d.Required)
		option(h, "yes", tr(h, "RequiredOnly"), d.Required)
		option(h, "no", tr(h, "OptionalOnly"), d.Required)
		h.raw(`</select> <button type="submit">`)
		h.t("Filter")
		h.raw(`</button> <a href="`, h.url("/bank/export"), `">`)
		h.t("ExportQuestions")
		h.raw(`</a></form><p>`)
		h.text(tp(h, "ShowingN", len(d.Drafts)))
		h.raw(`</p>`)

		if len(d.Drafts) == 0 {
			h.raw(`<p>`)
			h.t("NoDrafts")
			h.raw(`</p>`)
			return
		}
		h.raw(`<table><thead><tr><th>`)
		h.t("ColTopic")
		h.raw(`</th><th>`)
		h.t("FieldQuestion")
		h.raw(`</th><th>`)
		h.t("FieldType")
		h.raw(`</th><th>`)
		h.t("ColPoints")
		h.raw(`</th><th></th></tr></thead><tbody>`)
		for _, dr := range d.Drafts {
			h.raw(`<tr><td>`)
			h.text(dr.TopicTitle)
			h.raw(`</td><td>`)
			h.text(dr.Question.Text)
			if dr.Edited {
				h.raw(` <span class="badge">`)
				h.t("Edited")
				h.raw(`</span>`)
			}
			h.raw(`</td><td>`)
			h.text(string(dr.Question.Type))
			h.rawf(`</td><td>%d</td><td><a href="%s">`, dr.Question.PointValue, h.url(fmt.Sprintf("/bank/%d", dr.ID)))
			h.t("Edit")
			h.raw(`</a></td></tr>`)
		}
		h.raw(`</tbody></table>`)
	})
}

func option(h *html, value, label, selected string) {
	h.raw(`<option value="`, templ.EscapeString(value), `"`)
	if value == selected {
		h.raw(` selected`)
	}
	h.raw(`>`)
	h.text(label)
	h.raw(`</option>`)
}

// EditDraftPage is the edit form of one draft.
func EditDraftPage(d EditData) templ.Component {
	return page("Edit", func(h *html) {
		q := d.Draft.Question
		h.notice(d.Notice)
		h.raw(`<h1>`)
		h.text(d.Draft.TopicTitle)
		h.rawf(` #%d</h1>`, d.Draft.Position+1)
		if len(d.Problems) > 0 {
			h.raw(`<div class="notice notice-error"><ul>`)
			for _, p := range d.Problems {
				h.raw(`<li>`)
				h.text(p)
				h.raw(`</li>`)
			}
			h.raw(`</ul></div>`)
		}

		h.raw(`<form method="post" action="`, h.url(fmt.Sprintf("/bank/%d", d.Draft.ID)), `">`)
		h.csrfField()
		textArea(h, "FieldQuestion", "text", q.Text, 3)

		h.raw(`<p><label>`)
		h.t("FieldType")
		h.raw(` <select name="type">`)
		for _, t := range []model.QuestionType{model.TypeMCQ, model.TypeOpen, model.TypeShort, model.TypeReflective} {
			option(h, string(t), string(t), string(q.Type))
		}
		h.raw(`</select></label></p>`)

		field(h, "FieldPoints", "point_value", strconv.Itoa(q.PointValue))
		h.raw(`<p><label><input type="checkbox" name="required" value="yes"`)
		if q.Required {
			h.raw(` checked`)
		}
		h.raw(`> `)
		h.t("Core")
		h.raw(`</label></p>`)
		field(h, "FieldReference", "reference_timestamp", q.ReferenceTimestamp.String())

		var options, correct, sample, criteria string
		if q.Choice != nil {
			options = strings.Join(q.Choice.Options, "\n")
			correct = q.Choice.CorrectAnswer
		}
		if q.Rubric != nil {
			sample = q.Rubric.SampleAnswer
			criteria = FormatCriteria(q.Rubric.Criteria)
		}
		textArea(h, "FieldOptions", "options", options, 4)
		field(h, "FieldCorrect", "correct_answer", correct)
		textArea(h, "FieldSample", "sample_answer", sample, 3)
		textArea(h, "FieldCriteria", "criteria", criteria, 3)
		textArea(h, "FieldHints", "hints", strings.Join(q.Hints, "\n"), 3)
		textArea(h, "FieldExplanation", "explanation", q.Explanation, 3)

		h.raw(`<button type="submit">`)
		h.t("Save")
		h.raw(`</button> <a href="`, h.url("/bank"), `">`)
		h.t("Cancel")
		h.raw(`</a></form>`)
	})
}

// FormatCriteria writes rubric criteria one per line as "points | text".
func FormatCriteria(cs []model.Criterion) string {
	lines := make([]string, 0, len(cs))
	for _, c := range cs {
		lines = append(lines, fmt.Sprintf("%d | %s", c.Points, c.Criteria))
	}
	return strings.Join(lines, "\n")
}

func field(h *html, labelID, name, value string) {
	h.raw(`<p><label>`)
	h.t(labelID)
	h.raw(` <input type="text" name="`, name, `" value="`, templ.EscapeString(value), `"></label></p>`)
}

func textArea(h *html, labelID, name, value string, rows int) {
	h.raw(`<p><label>`)
	h.t(labelID)
	h.rawf(`<br><textarea name="%s" rows="%d" cols="80">`, name, rows)
	h.text(value)
	h.raw(`</textarea></label></p>`)
}
