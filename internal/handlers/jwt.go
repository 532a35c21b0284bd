package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/nkiryanov/userdir/internal/apperrors"
	"github.com/nkiryanov/userdir/internal/handlers/render"
	"github.com/nkiryanov/userdir/internal/handlers/userctx"
	"github.com/nkiryanov/userdir/internal/logger"
	"github.com/nkiryanov/userdir/internal/models"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Username wins when both are given
func (c credentialsRequest) identifier() string {
	if username := strings.TrimSpace(c.Username); username != "" {
		return username
	}
	return strings.TrimSpace(c.Email)
}

func handleJWTLogin(authService authService, logger logger.Logger) http.Handler {
	type response struct {
		AccessToken string          `json:"access_token"`
		User        models.UserView `json:"user"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[credentialsRequest](w, r)
		if err != nil {
			return
		}

		identifier := data.identifier()
		if identifier == "" || data.Password == "" {
			render.ServiceError(w, "username (or email) and password are required", http.StatusBadRequest)
			return
		}

		res, err := authService.Login(r.Context(), identifier, data.Password)
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrInvalidCredentials):
			render.ServiceError(w, "Invalid credentials", http.StatusUnauthorized)
			return
		default:
			serverError(w, r, logger, "jwt login failed", err)
			return
		}

		authService.SetRefreshCookie(w, res.Refresh)
		render.JSON(w, response{AccessToken: res.Access.Value, User: res.User.View()})
	})
}

func handleJWTRefresh(authService authService, logger logger.Logger) http.Handler {
	type response struct {
		AccessToken string `json:"access_token"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := authService.RefreshFromRequest(r)
		if raw == "" {
			render.ServiceError(w, "Missing refresh token", http.StatusUnauthorized)
			return
		}

		pair, err := authService.Refresh(r.Context(), raw)
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrInvalidRefreshToken):
			logFor(r, logger).Debug("refresh rejected", "reason", err)
			render.ServiceError(w, "Invalid refresh token", http.StatusUnauthorized)
			return
		default:
			serverError(w, r, logger, "refresh failed", err)
			return
		}

		authService.SetRefreshCookie(w, pair.Refresh)
		render.JSON(w, response{AccessToken: pair.Access.Value})
	})
}

func handleJWTLogout(authService authService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := authService.Logout(r.Context(), authService.RefreshFromRequest(r)); err != nil {
			serverError(w, r, logger, "logout failed", err)
			return
		}

		authService.ClearRefreshCookie(w)
		render.JSON(w, okResponse{OK: true})
	})
}

func handleProfile(userService userService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := userctx.FromContext(r.Context())
		user, err := userService.Get(r.Context(), id.UserID)
		switch {
		case err == nil:
			render.JSON(w, userResponse{User: viewOf(user)})
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.JSON(w, userResponse{})
		default:
			serverError(w, r, logger, "can't load profile", err)
		}
	})
}
