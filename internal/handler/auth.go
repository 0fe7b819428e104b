package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/brewloyal/api/internal/auth"
	"github.com/brewloyal/api/internal/database"
	"github.com/brewloyal/api/internal/enum"
	"github.com/brewloyal/api/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

// AuthStore defines the database methods needed by auth handlers.
// Satisfied by *database.Queries.
type AuthStore interface {
	GetAdminUserByEmail(ctx context.Context, email string) (database.AdminUser, error)
	GetAdminUserByID(ctx context.Context, id uuid.UUID) (database.AdminUser, error)
	GetOutlet(ctx context.Context, id uuid.UUID) (database.Outlet, error)
}

// Screens a staff session may open.
const (
	SurfaceCMS        = "cms"
	SurfaceOrders     = "orders"
	SurfaceRedemption = "redemption"
	SurfaceKitchen    = "kitchen"
)

// staffSurfaces maps each admin role to the screens it works from. Roles
// missing here (CUSTOMER) never get a staff session.
var staffSurfaces = map[string][]string{
	enum.UserRoleOwner:   {SurfaceCMS, SurfaceOrders, SurfaceRedemption, SurfaceKitchen},
	enum.UserRoleManager: {SurfaceCMS, SurfaceOrders, SurfaceRedemption, SurfaceKitchen},
	enum.UserRoleCashier: {SurfaceOrders, SurfaceRedemption, SurfaceKitchen},
	enum.UserRoleKitchen: {SurfaceKitchen},
}

// AuthHandler issues outlet-scoped sessions for CMS, cashier and kitchen
// board staff.
type AuthHandler struct {
	store     AuthStore
	jwtSecret string
}

func NewAuthHandler(store AuthStore, jwtSecret string) *AuthHandler {
	return &AuthHandler{store: store, jwtSecret: jwtSecret}
}

func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.Login)
	r.Post("/auth/refresh", h.Refresh)
}

// --- Request / Response types ---

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type sessionResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	User         staffResponse `json:"user"`
	Outlet       outletSummary `json:"outlet"`
	Surfaces     []string      `json:"surfaces"`
	// Room is the websocket room carrying this outlet's board and order events.
	Room string `json:"ws_room"`
}

type staffResponse struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"full_name"`
	Email    string    `json:"email"`
	Role     string    `json:"role"`
}

type outletSummary struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// --- Handlers ---

// Login checks email and password and opens a session on the user's outlet.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email and password are required"})
		return
	}

	user, err := h.store.GetAdminUserByEmail(r.Context(), req.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}
	if err != nil {
		log.Printf("ERROR: get admin user: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.Password)); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	h.openSession(w, r, user)
}

// Refresh exchanges a refresh token for a new session. The user is re-read,
// so a changed role or outlet takes effect here and a deactivated user is
// turned away.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.RefreshToken == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "refresh_token is required"})
		return
	}

	userID, err := auth.ParseRefreshToken(h.jwtSecret, req.RefreshToken)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid refresh token"})
		return
	}

	user, err := h.store.GetAdminUserByID(r.Context(), userID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "user not found"})
		return
	}
	if err != nil {
		log.Printf("ERROR: get admin user: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.openSession(w, r, user)
}

// --- Helpers ---

func (h *AuthHandler) openSession(w http.ResponseWriter, r *http.Request, user database.AdminUser) {
	surfaces, ok := staffSurfaces[user.Role]
	if !ok {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "role cannot open a staff session"})
		return
	}

	outlet, err := h.store.GetOutlet(r.Context(), user.OutletID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "outlet not found"})
		return
	}
	if err != nil {
		log.Printf("ERROR: get outlet %s: %v", user.OutletID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	accessToken, err := auth.GenerateToken(h.jwtSecret, user.ID, outlet.ID, user.Role)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	refreshToken, err := auth.GenerateRefreshToken(h.jwtSecret, user.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User: staffResponse{
			ID:       user.ID,
			FullName: user.FullName,
			Email:    user.Email,
			Role:     user.Role,
		},
		Outlet:   outletSummary{ID: outlet.ID, Name: outlet.Name},
		Surfaces: surfaces,
		Room:     ws.OutletRoom(outlet.ID),
	})
}
