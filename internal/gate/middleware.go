package gate

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

type ctxKey string

const verdictKey ctxKey = "gate_verdict"

// WithVerdict stores an allow verdict in the request context for handlers.
func WithVerdict(ctx context.Context, v Verdict) context.Context {
	return context.WithValue(ctx, verdictKey, v)
}

// VerdictFrom extracts the gate verdict placed by Require. The zero verdict
// (denied context) is returned when no decision was recorded.
func VerdictFrom(ctx context.Context) Verdict {
	if v, ok := ctx.Value(verdictKey).(Verdict); ok {
		return v
	}
	return Verdict{Kind: VerdictDeny, Status: http.StatusInternalServerError}
}

// Require wraps a handler with an access check at the given level. The slug
// is read from the "slug" path value when the route declares one. Redirect
// verdicts answer 303 so browsers re-issue as GET; deny verdicts answer JSON.
func (g *Gate) Require(level RequiredLevel, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		verdict := g.Decide(r.Context(), Request{HTTP: r, Slug: r.PathValue("slug")}, level)
		switch verdict.Kind {
		case VerdictAllow:
			next.ServeHTTP(w, r.WithContext(WithVerdict(r.Context(), verdict)))
		case VerdictRedirect:
			http.Redirect(w, r, verdict.Target, http.StatusSeeOther)
		default:
			status := verdict.Status
			if status == 0 {
				status = http.StatusForbidden
			}
			writeDeny(w, status)
		}
	})
}

func writeDeny(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]string{"error": http.StatusText(status)}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Int("status", status).Msg("gate: encode deny response")
	}
}
