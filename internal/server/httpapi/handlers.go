package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/i18n"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"github.com/gin-gonic/gin"
)

// Authenticator is the auth façade consumed by the handlers.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*models.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	Logout(ctx context.Context, token string) error
	Authenticate(ctx context.Context, accessToken string) (*models.User, error)
}

// UserManager is the user CRUD service consumed by the handlers.
type UserManager interface {
	Create(ctx context.Context, username, password, actor string) (*models.User, error)
	Get(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, offset, limit int) (*dbx.Page[*models.User], error)
	Update(ctx context.Context, id string, upd services.UserUpdate, actor string) (*models.User, error)
	Delete(ctx context.Context, id string) error
}

type handlers struct {
	auth   Authenticator
	users  UserManager
	health func(ctx context.Context) error
	log    logging.Logger
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

func toTokenResponse(p *models.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    p.TokenType,
		ExpiresIn:    p.ExpiresIn,
	}
}

type userResponse struct {
	ID        string    `json:"u_id"`
	Username  string    `json:"u_username"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy *string   `json:"created_by,omitempty"`
	UpdatedBy *string   `json:"updated_by,omitempty"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
		CreatedBy: u.CreatedBy,
		UpdatedBy: u.UpdatedBy,
	}
}

// --- auth ---

type loginRequest struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

// login accepts the password grant either as a form or as JSON.
func (h *handlers) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		abortWith(c, http.StatusUnprocessableEntity, i18n.ValidationError, err.Error())
		return
	}
	pair, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toTokenResponse(pair))
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (h *handlers) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, http.StatusUnprocessableEntity, i18n.ValidationError, err.Error())
		return
	}
	pair, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toTokenResponse(pair))
}

func (h *handlers) logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), c.GetString(bearerTokenKey)); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, i18n.LogoutSuccess, nil, nil)
}

// --- users ---

type createUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *handlers) createUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, http.StatusUnprocessableEntity, i18n.ValidationError, err.Error())
		return
	}
	u, err := h.users.Create(c.Request.Context(), req.Username, req.Password, "")
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, i18n.UserCreated, toUserResponse(u), nil)
}

func (h *handlers) listUsers(c *gin.Context) {
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		abortWith(c, http.StatusUnprocessableEntity, i18n.ValidationError, err.Error())
		return
	}
	limit, err := queryInt(c, "limit", services.DefaultPageLimit)
	if err != nil {
		abortWith(c, http.StatusUnprocessableEntity, i18n.ValidationError, err.Error())
		return
	}

	page, err := h.users.List(c.Request.Context(), offset, limit)
	if err != nil {
		h.fail(c, err)
		return
	}

	items := make([]userResponse, 0, len(page.Items))
	for _, u := range page.Items {
		items = append(items, toUserResponse(u))
	}
	respond(c, http.StatusOK, i18n.UserListRetrieved, items, map[string]any{
		"total": page.Total,
		"page":  page.Number(),
		"pages": page.Pages(),
		"limit": page.Limit,
	})
}

func (h *handlers) getUser(c *gin.Context) {
	u, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, i18n.UserRetrieved, toUserResponse(u), nil)
}

type updateUserRequest struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
}

func (h *handlers) updateUser(c *gin.Context) {
	caller, ok := h.self(c)
	if !ok {
		return
	}
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, http.StatusUnprocessableEntity, i18n.ValidationError, err.Error())
		return
	}
	u, err := h.users.Update(c.Request.Context(), caller.ID,
		services.UserUpdate{Username: req.Username, Password: req.Password}, caller.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, i18n.UserUpdated, toUserResponse(u), nil)
}

func (h *handlers) deleteUser(c *gin.Context) {
	caller, ok := h.self(c)
	if !ok {
		return
	}
	if err := h.users.Delete(c.Request.Context(), caller.ID); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, i18n.UserDeleted, nil, nil)
}

// self returns the authenticated caller when the :id path parameter names
// the caller's own account; accounts are only modifiable by their owner.
func (h *handlers) self(c *gin.Context) (*models.User, bool) {
	caller := currentUser(c)
	if caller == nil {
		abortWith(c, http.StatusUnauthorized, i18n.Unauthorized)
		return nil, false
	}
	if c.Param("id") != caller.ID {
		abortWith(c, http.StatusForbidden, i18n.Forbidden)
		return nil, false
	}
	return caller, true
}

// --- misc ---

func (h *handlers) healthz(c *gin.Context) {
	if h.health != nil {
		if err := h.health(c.Request.Context()); err != nil {
			h.log.Warn(c.Request.Context(), "health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
