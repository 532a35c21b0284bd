package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/nkiryanov/userdir/internal/apperrors"
	"github.com/nkiryanov/userdir/internal/handlers/render"
	"github.com/nkiryanov/userdir/internal/logger"
	"github.com/nkiryanov/userdir/internal/service/auth"
)

// Cookie session flavour of authentication

func handleRegister(authService authService, sessionService sessionService, logger logger.Logger) http.Handler {
	type request struct {
		Username string `json:"username" validate:"notblank,max=64"`
		Password string `json:"password" validate:"required,min=8"`
		Name     string `json:"name"`
		Email    string `json:"email" validate:"omitempty,email"`
		Address  string `json:"address"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, err := authService.Register(r.Context(), auth.RegisterParams{
			Username: strings.TrimSpace(data.Username),
			Email:    strings.TrimSpace(data.Email),
			Name:     strings.TrimSpace(data.Name),
			Address:  strings.TrimSpace(data.Address),
			Password: data.Password,
		})
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.ServiceError(w, "User already exists", http.StatusConflict)
			return
		default:
			serverError(w, r, logger, "register failed", err)
			return
		}

		if err := sessionService.Login(r.Context(), w, r, user.ID); err != nil {
			serverError(w, r, logger, "can't start session", err)
			return
		}

		render.JSON(w, userResponse{User: viewOf(user)})
	})
}

func handleSessionLogin(authService authService, sessionService sessionService, logger logger.Logger) http.Handler {
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

		user, err := authService.VerifyPassword(r.Context(), identifier, data.Password)
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrInvalidCredentials):
			render.ServiceError(w, "Invalid credentials", http.StatusUnauthorized)
			return
		default:
			serverError(w, r, logger, "session login failed", err)
			return
		}

		if err := sessionService.Login(r.Context(), w, r, user.ID); err != nil {
			serverError(w, r, logger, "can't start session", err)
			return
		}

		render.JSON(w, userResponse{User: viewOf(user)})
	})
}

func handleSessionLogout(sessionService sessionService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := sessionService.Logout(r.Context(), w, r); err != nil {
			serverError(w, r, logger, "session logout failed", err)
			return
		}
		render.JSON(w, okResponse{OK: true})
	})
}

func handleSessionMe(sessionService sessionService, userService userService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := sessionService.UserID(r.Context(), r)
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrSessionNotFound):
			render.JSON(w, userResponse{})
			return
		default:
			serverError(w, r, logger, "can't read session", err)
			return
		}

		user, err := userService.Get(r.Context(), userID)
		switch {
		case err == nil:
			render.JSON(w, userResponse{User: viewOf(user)})
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.JSON(w, userResponse{})
		default:
			serverError(w, r, logger, "can't load user", err)
		}
	})
}
