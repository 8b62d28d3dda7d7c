package i18n

import (
	"net/http"

	"golang.org/x/text/language"
)

// LangCookie remembers a language picked with the ?lang= query parameter.
const LangCookie = "lang"

// Middleware negotiates the request language and injects its localizer into
// the request context. An explicit ?lang= wins and is stored in a cookie;
// otherwise the cookie, then Accept-Language, then fallback are tried.
func Middleware(fallback string) func(http.Handler) http.Handler {
	matcher := language.NewMatcher(Languages())
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var cookieLang string
			if c, err := r.Cookie(LangCookie); err == nil {
				cookieLang = c.Value
			}
			queryLang := r.URL.Query().Get("lang")

			tag, _ := language.MatchStrings(matcher, queryLang, cookieLang, r.Header.Get("Accept-Language"), fallback)
			base, _ := tag.Base()
			lang := base.String()

			if queryLang != "" {
				http.SetCookie(w, &http.Cookie{
					Name:     LangCookie,
					Value:    lang,
					Path:     "/",
					MaxAge:   365 * 24 * 60 * 60,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := WithLocalizer(r.Context(), NewLocalizer(lang, fallback))
			ctx = WithLang(ctx, lang)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
