package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/genzdict/battlegate/internal/auth"
	"github.com/genzdict/battlegate/internal/database"
	"github.com/genzdict/battlegate/internal/document"
	"github.com/genzdict/battlegate/internal/models"
)

// CreateUserHandler provisions an account and seeds the matching profile
// document. Profile creation is a system write: account provisioning is the
// one writer allowed to create users/{uid} outside the policy rules.
func CreateUserHandler(g *Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email     string `json:"email"`
			Password  string `json:"password"`
			DisplayID string `json:"displayId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if req.DisplayID == "" {
			http.Error(w, "displayId is required", http.StatusBadRequest)
			return
		}

		user := models.User{
			Email:     req.Email,
			Password:  req.Password,
			DisplayID: req.DisplayID,
		}

		ctx := r.Context()
		if err := database.CreateUser(ctx, &user); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				http.Error(w, "email already exists", http.StatusConflict)
				return
			}
			http.Error(w, "error creating user", http.StatusInternalServerError)
			return
		}

		profile := document.Doc{
			"displayId":      user.DisplayID,
			"displayIdLower": strings.ToLower(user.DisplayID),
		}
		if err := g.Store.PutSystem(ctx, document.UserPath(user.ID.String()), profile); err != nil {
			g.Logger.Errorf("failed to seed profile for %s: %v", user.ID, err)
			http.Error(w, "error creating user profile", http.StatusInternalServerError)
			return
		}

		user.Password = ""
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(user)
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// LoginHandler verifies credentials and returns an identity token, both in
// the response body and as the auth_token cookie the other handlers read.
func LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}

	token, err := database.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		log.Printf("failed to authenticate user: %v", err)
		http.Error(w, "authentication failed", http.StatusForbidden)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		MaxAge:   auth.TokenExpireSec,
	})

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(loginResponse{Token: token}); err != nil {
		http.Error(w, "failed to write response", http.StatusInternalServerError)
	}
}
