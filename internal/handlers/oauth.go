package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/nkiryanov/userdir/internal/apperrors"
	"github.com/nkiryanov/userdir/internal/handlers/render"
	"github.com/nkiryanov/userdir/internal/logger"
	"github.com/nkiryanov/userdir/internal/service/gateway"
)

// Browser flavour of the oauth start: redirect instead of json
func handleOAuthStart(gatewayService gatewayService, sessionService sessionService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("provider")
		if _, err := gatewayService.Provider(name); err != nil {
			renderLoginError(w, r, logger, name, err)
			return
		}

		saveState := func(ctx context.Context, state string) error {
			return sessionService.SaveOAuthState(ctx, w, r, state)
		}

		outcome, err := gatewayService.Login(r.Context(), gateway.Request{Provider: name}, saveState)
		if err != nil {
			renderLoginError(w, r, logger, name, err)
			return
		}

		http.Redirect(w, r, outcome.RedirectURL, http.StatusFound)
	})
}

func handleOAuthCallback(
	frontendURL string,
	gatewayService gatewayService,
	sessionService sessionService,
	userService userService,
	logger logger.Logger,
) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("provider")
		provider, err := gatewayService.Provider(name)
		if err != nil {
			renderLoginError(w, r, logger, name, err)
			return
		}

		code := r.URL.Query().Get("code")
		state := r.URL.Query().Get("state")

		// State is single use, it is cleared whatever happens next
		expected, err := sessionService.TakeOAuthState(r.Context(), r)
		if err != nil && !errors.Is(err, apperrors.ErrSessionNotFound) {
			serverError(w, r, logger, "can't read oauth state", err)
			return
		}

		if code == "" || state == "" || expected == "" || subtle.ConstantTimeCompare([]byte(state), []byte(expected)) != 1 {
			logFor(r, logger).Debug("oauth callback rejected", "provider", name, "reason", apperrors.ErrOAuthStateMismatch)
			render.ServiceError(w, "Invalid OAuth state or code", http.StatusBadRequest)
			return
		}

		identity, err := provider.Identify(r.Context(), code)
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrOAuthIdentity):
			logFor(r, logger).Warn("oauth identity rejected", "provider", name, "error", err)
			render.ServiceError(w, "OAuth identity could not be verified", http.StatusBadRequest)
			return
		default:
			serverError(w, r, logger, "oauth identify failed", err)
			return
		}

		user, err := userService.ResolveOAuth(r.Context(), identity)
		if err != nil {
			serverError(w, r, logger, "can't resolve oauth user", err)
			return
		}

		if err := sessionService.Login(r.Context(), w, r, user.ID); err != nil {
			serverError(w, r, logger, "can't start session", err)
			return
		}

		http.Redirect(w, r, frontendURL, http.StatusFound)
	})
}
