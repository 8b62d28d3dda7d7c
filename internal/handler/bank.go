package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/lecturetutor/internal/catalog"
	"github.com/pavelanni/lecturetutor/internal/handler/views"
	"github.com/pavelanni/lecturetutor/internal/model"
	"github.com/pavelanni/lecturetutor/internal/store"
)

func (h *Handler) handleBankList(w http.ResponseWriter, r *http.Request) {
	d := views.BankData{Enabled: h.store != nil}
	if h.store == nil {
		h.render(w, r, http.StatusOK, views.BankPage(d))
		return
	}

	query := r.URL.Query()
	d.Topic = query.Get("topic")
	d.Required = query.Get("required")
	filter := model.DraftFilter{TopicTitle: d.Topic}
	if t := query.Get("type"); t != "" {
		if typ, err := model.ParseQuestionType(t); err == nil {
			filter.Type = typ
			d.Type = string(typ)
		}
	}
	switch d.Required {
	case "yes":
		yes := true
		filter.Required = &yes
	case "no":
		no := false
		filter.Required = &no
	}

	var err error
	if d.Drafts, err = h.store.ListDrafts(filter); err != nil {
		slog.Error("failed to list drafts", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if d.Topics, err = h.store.ListDistinctTopics(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if d.Types, err = h.store.ListDistinctTypes(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if d.Source, err = h.store.GetMetadata(store.MetaSource); err != nil {
		slog.Warn("failed to read bank source", "error", err)
	}
	if query.Get("saved") != "" {
		d.Notice = &views.Notice{Kind: views.NoticeSuccess, Text: appT(r, "Saved")}
	}
	h.render(w, r, http.StatusOK, views.BankPage(d))
}

func (h *Handler) handleBankExport(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		http.Error(w, "question bank disabled", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", store.ExportFileName))
	n, err := h.store.WriteExport(w)
	if err != nil {
		slog.Error("failed to export drafts", "error", err)
		return
	}
	slog.Info("exported question bank", "questions", n)
}

// draftParam loads the draft named by the {draftID} URL parameter.
func (h *Handler) draftParam(w http.ResponseWriter, r *http.Request) (model.Draft, bool) {
	if h.store == nil {
		http.Error(w, "question bank disabled", http.StatusNotFound)
		return model.Draft{}, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "draftID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid draft ID", http.StatusBadRequest)
		return model.Draft{}, false
	}
	d, err := h.store.GetDraft(id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return model.Draft{}, false
	}
	if err != nil {
		slog.Error("failed to get draft", "id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return model.Draft{}, false
	}
	return d, true
}

func (h *Handler) handleEditDraftPage(w http.ResponseWriter, r *http.Request) {
	d, ok := h.draftParam(w, r)
	if !ok {
		return
	}
	h.render(w, r, http.StatusOK, views.EditDraftPage(views.EditData{Draft: d}))
}

func (h *Handler) handleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	d, ok := h.draftParam(w, r)
	if !ok {
		return
	}
	q, problems := questionFromForm(r)
	problems = append(problems, catalog.CheckQuestion(q)...)
	d.Question = q
	if len(problems) > 0 {
		h.render(w, r, http.StatusUnprocessableEntity, views.EditDraftPage(views.EditData{Draft: d, Problems: problems}))
		return
	}
	if err := h.store.UpdateDraft(d); err != nil {
		slog.Error("failed to update draft", "id", d.ID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.redirect(w, r, "/bank?saved=1&topic="+url.QueryEscape(d.TopicTitle))
}

// questionFromForm reads the edit form. Field-level parse problems are
// returned alongside the partially filled question.
func questionFromForm(r *http.Request) (model.Question, []string) {
	var problems []string
	q := model.Question{
		Text:               strings.TrimSpace(r.FormValue("text")),
		Required:           r.FormValue("required") == "yes",
		Explanation:        strings.TrimSpace(r.FormValue("explanation")),
		ReferenceTimestamp: model.Timestamp(strings.TrimSpace(r.FormValue("reference_timestamp"))),
		Hints:              lines(r.FormValue("hints")),
	}

	typ, err := model.ParseQuestionType(r.FormValue("type"))
	if err != nil {
		problems = append(problems, err.Error())
		typ = model.TypeOpen
	}
	q.Type = typ

	if pv := strings.TrimSpace(r.FormValue("point_value")); pv != "" {
		if q.PointValue, err = strconv.Atoi(pv); err != nil {
			problems = append(problems, fmt.Sprintf("point_value %q is not a number", pv))
		}
	}

	if typ == model.TypeMCQ {
		q.Choice = &model.Choice{
			Options:       lines(r.FormValue("options")),
			CorrectAnswer: strings.TrimSpace(r.FormValue("correct_answer")),
		}
		return q, problems
	}
	criteria, err := parseCriteria(r.FormValue("criteria"))
	if err != nil {
		problems = append(problems, err.Error())
	}
	q.Rubric = &model.Rubric{
		SampleAnswer: strings.TrimSpace(r.FormValue("sample_answer")),
		Criteria:     criteria,
	}
	return q, problems
}

// parseCriteria reads "points | text" lines as written by views.FormatCriteria.
func parseCriteria(s string) ([]model.Criterion, error) {
	var out []model.Criterion
	for i, line := range lines(s) {
		pts, text, ok := strings.Cut(line, "|")
		if !ok {
			return out, fmt.Errorf("criteria line %d: expected \"points | text\"", i+1)
		}
		n, err := strconv.Atoi(strings.TrimSpace(pts))
		if err != nil {
			return out, fmt.Errorf("criteria line %d: points %q is not a number", i+1, strings.TrimSpace(pts))
		}
		out = append(out, model.Criterion{Criteria: strings.TrimSpace(text), Points: n})
	}
	return out, nil
}

// lines splits s into trimmed, non-empty lines.
func lines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
