// Package views renders the tutor pages. Components only read the data they
// are given.
package views

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/lecturetutor/internal/i18n"
	"github.com/pavelanni/lecturetutor/internal/model"
)

// NoticeKind selects the styling of a notice.
type NoticeKind string

const (
	NoticeInfo    NoticeKind = "info"
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// Notice is a one-time message shown above the page content.
type Notice struct {
	Kind NoticeKind
	Text string
}

// html accumulates markup and keeps the first write error.
type html struct {
	w   io.Writer
	ctx context.Context
	err error
}

func (h *html) raw(parts ...string) {
	for _, p := range parts {
		if h.err != nil {
			return
		}
		_, h.err = io.WriteString(h.w, p)
	}
}

func (h *html) rawf(format string, args ...any) {
	h.raw(fmt.Sprintf(format, args...))
}

// text writes escaped text.
func (h *html) text(s string) {
	h.raw(templ.EscapeString(s))
}

// t writes an escaped translation.
func (h *html) t(msgID string) {
	h.text(appI18n.T(h.ctx, msgID))
}

func (h *html) td(msgID string, data map[string]any) {
	h.text(appI18n.Td(h.ctx, msgID, data))
}

// url returns the escaped, base-path-prefixed form of path.
func (h *html) url(path string) string {
	return templ.EscapeString(model.BasePathFromContext(h.ctx) + path)
}

func (h *html) csrfField() {
	h.raw(`<input type="hidden" name="csrf_token" value="`, templ.EscapeString(model.CSRFTokenFromContext(h.ctx)), `">`)
}

// postButton renders a form with a single submit button.
func (h *html) postButton(path, labelID, class string) {
	h.raw(`<form method="post" class="inline" action="`, h.url(path), `">`)
	h.csrfField()
	h.raw(`<button type="submit" class="`, class, `">`)
	h.t(labelID)
	h.raw(`</button></form>`)
}

func (h *html) notice(n *Notice) {
	if n == nil || n.Text == "" {
		return
	}
	h.raw(`<div class="notice notice-`, string(n.Kind), `" role="status">`)
	h.text(n.Text)
	h.raw(`</div>`)
}

// page wraps body in the common layout.
func page(titleID string, body func(h *html)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w, ctx: ctx}
		h.raw(`<!DOCTYPE html><html lang="`, templ.EscapeString(appI18n.Lang(ctx)), `"><head><meta charset="utf-8">`)
		h.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		h.raw(`<title>`)
		h.t(titleID)
		h.raw(` | `)
		h.t("AppTitle")
		h.raw(`</title><style>`, stylesheet, `</style></head><body>`)
		h.raw(`<header><a class="brand" href="`, h.url("/"), `">`)
		h.t("AppTitle")
		h.raw(`</a><nav><a href="`, h.url("/learn"), `">`)
		h.t("NavLearn")
		h.raw(`</a><a href="`, h.url("/bank"), `">`)
		h.t("QuestionBank")
		h.raw(`</a><span class="langs"><a href="?lang=en">EN</a> <a href="?lang=ru">RU</a></span></nav></header><main>`)
		body(h)
		h.raw(`</main></body></html>`)
		return h.err
	})
}

const stylesheet = `
body{font-family:system-ui,sans-serif;margin:0;color:#222;background:#fafafa}
header{display:flex;justify-content:space-between;align-items:center;padding:.6rem 1.2rem;background:#243b55;color:#fff}
header a{color:#fff;text-decoration:none;margin-left:1rem}
.brand{font-weight:600;margin-left:0}
main{padding:1rem 1.2rem;max-width:1200px;margin:auto}
.layout{display:grid;grid-template-columns:260px 1fr;gap:1.2rem}
aside{background:#fff;border:1px solid #ddd;border-radius:6px;padding:.8rem}
table{border-collapse:collapse;width:100%}
td,th{border-bottom:1px solid #e4e4e4;padding:.35rem;text-align:left;vertical-align:top}
tr.selected{background:#eef4ff}
.notice{padding:.6rem;border-radius:4px;margin-bottom:.8rem}
.notice-info{background:#eef4ff}.notice-success{background:#e7f7ea}.notice-error{background:#fdecea}
.tabs a{margin-right:.8rem}.tabs a.active{font-weight:600}
.chat{border:1px solid #ddd;border-radius:6px;padding:.6rem;background:#fff}
.turn{margin:.4rem 0;white-space:pre-wrap}.turn-user{color:#243b55}.turn-assistant{color:#333}
.inline{display:inline}
pre{white-space:pre-wrap;background:#f3f3f3;padding:.6rem;border-radius:4px}
video{width:100%;max-height:420px;background:#000}
.badge{font-size:.8em;padding:0 .35rem;border-radius:3px;background:#ddd}
.badge-done{background:#b8e6c1}
`

func tr(h *html, msgID string) string {
	return appI18n.T(h.ctx, msgID)
}

func tp(h *html, msgID string, count int) string {
	return appI18n.Tp(h.ctx, msgID, count)
}
