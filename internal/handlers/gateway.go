package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/nkiryanov/userdir/internal/apperrors"
	"github.com/nkiryanov/userdir/internal/handlers/render"
	"github.com/nkiryanov/userdir/internal/logger"
	"github.com/nkiryanov/userdir/internal/models"
	"github.com/nkiryanov/userdir/internal/service/gateway"
)

// Single login entry for the frontend: password login or oauth redirect url
func handleGatewayLogin(gatewayService gatewayService, authService authService, sessionService sessionService, logger logger.Logger) http.Handler {
	type request struct {
		Provider string `json:"provider"`
		credentialsRequest
	}
	type passwordResponse struct {
		Provider    string          `json:"provider"`
		AccessToken string          `json:"access_token"`
		User        models.UserView `json:"user"`
	}
	type redirectResponse struct {
		Provider    string `json:"provider"`
		RedirectURL string `json:"redirectUrl"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		saveState := func(ctx context.Context, state string) error {
			return sessionService.SaveOAuthState(ctx, w, r, state)
		}

		outcome, err := gatewayService.Login(r.Context(), gateway.Request{
			Provider: data.Provider,
			Username: data.Username,
			Email:    data.Email,
			Password: data.Password,
		}, saveState)
		if err != nil {
			renderLoginError(w, r, logger, data.Provider, err)
			return
		}

		if outcome.Login != nil {
			authService.SetRefreshCookie(w, outcome.Login.Refresh)
			render.JSON(w, passwordResponse{
				Provider:    outcome.Provider,
				AccessToken: outcome.Login.Access.Value,
				User:        outcome.Login.User.View(),
			})
			return
		}

		render.JSON(w, redirectResponse{Provider: outcome.Provider, RedirectURL: outcome.RedirectURL})
	})
}

func renderLoginError(w http.ResponseWriter, r *http.Request, l logger.Logger, provider string, err error) {
	switch {
	case errors.Is(err, apperrors.ErrMissingCredentials):
		render.ServiceError(w, "username (or email) and password are required", http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		render.ServiceError(w, "Invalid credentials", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrUnsupportedProvider):
		render.ServiceError(w, "Unsupported provider", http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrProviderMisconfigured):
		render.ServiceError(w, fmt.Sprintf("%s OAuth not configured", provider), http.StatusNotImplemented)
	default:
		serverError(w, r, l, "login failed", err)
	}
}
