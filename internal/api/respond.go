package api

import (
	"net/http"

	"github.com/go-chi/render"
)

func writeData(w http.ResponseWriter, r *http.Request, status int, data any) {
	render.Status(r, status)
	render.JSON(w, r, Response{Success: true, Data: data})
}

// writeUserMessage answers with a message plus the affected user's ID, the
// shape the deletion and disapproval paths return instead of an entity body.
func writeUserMessage(w http.ResponseWriter, r *http.Request, status int, message string, userID int64) {
	render.Status(r, status)
	render.JSON(w, r, Response{Success: true, Message: message, UserID: &userID})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, Response{Success: false, Message: message})
}
