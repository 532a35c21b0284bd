package handlers

import (
	"net/http"

	"github.com/nkiryanov/userdir/internal/handlers/render"
	"github.com/nkiryanov/userdir/internal/logger"
	"github.com/nkiryanov/userdir/internal/models"
)

type okResponse struct {
	OK bool `json:"ok"`
}

// User or null
type userResponse struct {
	User *models.UserView `json:"user"`
}

type dataResponse struct {
	Data any `json:"data"`
}

func viewOf(u models.User) *models.UserView {
	v := u.View()
	return &v
}

func viewsOf(users []models.User) []models.UserView {
	views := make([]models.UserView, 0, len(users))
	for _, u := range users {
		views = append(views, u.View())
	}
	return views
}

func handleHealth() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, okResponse{OK: true})
	})
}

func handleSecret() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, okResponse{OK: true})
	})
}

func handleExportUsers(userService userService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		users, err := userService.List(r.Context())
		if err != nil {
			serverError(w, r, logger, "can't export users", err)
			return
		}
		render.JSON(w, dataResponse{Data: viewsOf(users)})
	})
}
