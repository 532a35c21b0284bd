package middleware

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/userdir/internal/apperrors"
	"github.com/nkiryanov/userdir/internal/handlers/render"
	"github.com/nkiryanov/userdir/internal/handlers/userctx"
	"github.com/nkiryanov/userdir/internal/logger"
)

// Denials that are the caller fault. Anything else is a server failure
var denials = []error{
	apperrors.ErrNoCredentials,
	apperrors.ErrSessionNotFound,
	apperrors.ErrInvalidToken,
	apperrors.ErrInvalidCredentials,
	apperrors.ErrMissingAPIKey,
	apperrors.ErrInvalidAPIKey,
	apperrors.ErrAPIKeyUnconfigured,
}

func isDenial(err error) bool {
	for _, d := range denials {
		if errors.Is(err, d) {
			return true
		}
	}
	return false
}

// Authenticate tries strategies in order, the first success attaches identity to the request context
func Authenticate(l logger.Logger, strategies ...Strategy) func(http.Handler) http.Handler {
	withBasic := false
	for _, s := range strategies {
		if s.Scheme() == userctx.SchemeBasic {
			withBasic = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := logger.FromContext(r.Context(), l)

			var failed, unconfigured bool
			for _, s := range strategies {
				id, err := s.Authenticate(r)
				if err == nil {
					next.ServeHTTP(w, r.WithContext(userctx.New(r.Context(), id)))
					return
				}

				switch {
				case errors.Is(err, apperrors.ErrAPIKeyUnconfigured):
					unconfigured = true
					log.Warn("api key presented but no keys configured")
				case isDenial(err):
					log.Debug("auth strategy denied", "reason", describe(s, err))
				default:
					failed = true
					log.Error("auth strategy failed", "reason", describe(s, err))
				}
			}

			switch {
			case failed:
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			case unconfigured:
				render.ServiceError(w, "API key not configured", http.StatusInternalServerError)
			default:
				if withBasic {
					w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
				}
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			}
		})
	}
}
