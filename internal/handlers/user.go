package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/nkiryanov/userdir/internal/apperrors"
	"github.com/nkiryanov/userdir/internal/handlers/render"
	"github.com/nkiryanov/userdir/internal/logger"
	"github.com/nkiryanov/userdir/internal/repository"
	usersvc "github.com/nkiryanov/userdir/internal/service/user"
)

// Body of POST and PUT. fullName is accepted as an alias of name
type userRequest struct {
	Username string  `json:"username" validate:"max=64"`
	Name     *string `json:"name"`
	FullName *string `json:"fullName"`
	Email    string  `json:"email" validate:"omitempty,email"`
	Address  string  `json:"address"`
	Password string  `json:"password" validate:"omitempty,min=8"`
}

func (u userRequest) name() string {
	return strings.TrimSpace(firstOf(u.FullName, u.Name))
}

// Body of PATCH, absent fields stay untouched
type userPatchRequest struct {
	Username *string `json:"username" validate:"notblank"`
	Name     *string `json:"name" validate:"notblank"`
	FullName *string `json:"fullName" validate:"notblank"`
	Email    *string `json:"email" validate:"notblank"`
	Address  *string `json:"address"`
}

func firstOf(values ...*string) string {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return ""
}

func userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		render.ServiceError(w, "Invalid user id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func renderUserError(w http.ResponseWriter, r *http.Request, l logger.Logger, err error) {
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		render.ServiceError(w, "User not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrUserAlreadyExists):
		render.ServiceError(w, "User already exists", http.StatusConflict)
	default:
		serverError(w, r, l, "user operation failed", err)
	}
}

func handleListUsers(userService userService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		users, err := userService.List(r.Context())
		if err != nil {
			serverError(w, r, logger, "can't list users", err)
			return
		}
		render.JSON(w, dataResponse{Data: viewsOf(users)})
	})
}

func handleGetUser(userService userService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := userID(w, r)
		if !ok {
			return
		}

		user, err := userService.Get(r.Context(), id)
		if err != nil {
			renderUserError(w, r, logger, err)
			return
		}
		render.JSON(w, dataResponse{Data: user.View()})
	})
}

func handleCreateUser(userService userService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[userRequest](w, r)
		if err != nil {
			return
		}

		name, email := data.name(), strings.TrimSpace(data.Email)
		if name == "" || email == "" {
			render.ServiceError(w, "name and email are required", http.StatusBadRequest)
			return
		}

		user, err := userService.Create(r.Context(), usersvc.CreateParams{
			Username: data.Username,
			Email:    email,
			Name:     name,
			Address:  data.Address,
			Password: data.Password,
		})
		if err != nil {
			renderUserError(w, r, logger, err)
			return
		}
		render.JSONWithStatus(w, dataResponse{Data: user.View()}, http.StatusCreated)
	})
}

// PUT replaces name, email and address
func handleReplaceUser(userService userService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := userID(w, r)
		if !ok {
			return
		}

		data, err := render.BindAndValidate[userRequest](w, r)
		if err != nil {
			return
		}

		name, email, address := data.name(), strings.TrimSpace(data.Email), strings.TrimSpace(data.Address)
		if name == "" || email == "" {
			render.ServiceError(w, "name and email are required", http.StatusBadRequest)
			return
		}

		params := repository.UpdateUserParams{Name: &name, Email: &email, Address: &address}
		if username := strings.TrimSpace(data.Username); username != "" {
			params.Username = &username
		}

		user, err := userService.Update(r.Context(), id, params)
		if err != nil {
			renderUserError(w, r, logger, err)
			return
		}
		render.JSON(w, dataResponse{Data: user.View()})
	})
}

func handlePatchUser(userService userService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := userID(w, r)
		if !ok {
			return
		}

		data, err := render.BindAndValidate[userPatchRequest](w, r)
		if err != nil {
			return
		}

		name := data.Name
		if name == nil {
			name = data.FullName
		}

		user, err := userService.Update(r.Context(), id, repository.UpdateUserParams{
			Username: data.Username,
			Name:     name,
			Email:    data.Email,
			Address:  data.Address,
		})
		if err != nil {
			renderUserError(w, r, logger, err)
			return
		}
		render.JSON(w, dataResponse{Data: user.View()})
	})
}

func handleDeleteUser(userService userService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := userID(w, r)
		if !ok {
			return
		}

		if err := userService.Delete(r.Context(), id); err != nil {
			renderUserError(w, r, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
