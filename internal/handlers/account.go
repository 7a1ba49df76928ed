package handlers

import (
	"errors"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/aster/pkg/accounts"
	"github.com/Ramsey-B/aster/pkg/models"
)

// AccountHandler manages the configured provider accounts and preferences
type AccountHandler struct {
	store  *accounts.Store
	logger ectologger.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(store *accounts.Store, logger ectologger.Logger) *AccountHandler {
	return &AccountHandler{
		store:  store,
		logger: logger,
	}
}

// RegisterRoutes registers account routes
func (h *AccountHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/accounts", h.ListAccounts)
	g.GET("/accounts/:id", h.GetAccount)
	g.PUT("/accounts", h.UpsertAccount)
	g.DELETE("/accounts/:id", h.DeleteAccount)
	g.GET("/preferences", h.GetPreferences)
	g.PUT("/preferences", h.SetPreferences)
}

// ListAccounts returns every configured account
func (h *AccountHandler) ListAccounts(c echo.Context) error {
	ctx := c.Request().Context()

	list, err := h.store.List(ctx)
	if err != nil {
		return err
	}
	if list == nil {
		list = []models.Account{}
	}
	return SuccessResponse(c, list)
}

// GetAccount returns one account by id
func (h *AccountHandler) GetAccount(c echo.Context) error {
	ctx := c.Request().Context()

	account, err := h.store.Get(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			return NotFound("account not found")
		}
		return err
	}
	return SuccessResponse(c, account)
}

// UpsertAccount creates or replaces an account
func (h *AccountHandler) UpsertAccount(c echo.Context) error {
	ctx := c.Request().Context()

	var account models.Account
	if err := c.Bind(&account); err != nil {
		return BadRequest("invalid request body")
	}

	created := account.ID == ""

	stored, err := h.store.Upsert(ctx, account)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Warn("rejected account upsert")
		return BadRequest(err.Error())
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"account_id": stored.ID,
		"provider":   stored.Provider,
	}).Info("account saved")

	if created {
		return CreatedResponse(c, stored)
	}
	return SuccessResponse(c, stored)
}

// DeleteAccount removes an account by id
func (h *AccountHandler) DeleteAccount(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.store.Delete(ctx, c.Param("id")); err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			return NotFound("account not found")
		}
		return err
	}
	return NoContentResponse(c)
}

// GetPreferences returns the stored display preferences
func (h *AccountHandler) GetPreferences(c echo.Context) error {
	ctx := c.Request().Context()

	prefs, err := h.store.GetPreferences(ctx)
	if err != nil {
		return err
	}
	return SuccessResponse(c, prefs)
}

// SetPreferences replaces the display preferences
func (h *AccountHandler) SetPreferences(c echo.Context) error {
	ctx := c.Request().Context()

	var prefs accounts.Preferences
	if err := c.Bind(&prefs); err != nil {
		return BadRequest("invalid request body")
	}

	if err := h.store.SetPreferences(ctx, prefs); err != nil {
		return BadRequest(err.Error())
	}
	return SuccessResponse(c, prefs)
}
