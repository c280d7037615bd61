package merchant

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/opay-dz/opay/internal/fees"
	"github.com/opay-dz/opay/internal/wallet"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotMerchant), errors.Is(err, ErrCustomerNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInactive):
		return http.StatusForbidden
	case errors.Is(err, wallet.ErrInsufficientFunds), errors.Is(err, wallet.ErrWalletNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrSelfTopup), errors.Is(err, ErrInvalidTier), errors.Is(err, fees.ErrInvalidAmount):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func fail(c echo.Context, err error, op string) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Str("op", op).Msg("merchant request failed")
		return c.JSON(status, echo.Map{"error": "failed to " + op})
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}

// Account - GET /merchant/account
func (h *Handler) Account(c echo.Context) error {
	uid, _ := c.Get("user_id").(string)
	a, err := h.svc.Account(c.Request().Context(), uid)
	if err != nil {
		return fail(c, err, "load merchant account")
	}
	return c.JSON(http.StatusOK, a)
}

type topupRequest struct {
	CustomerPhone string          `json:"customer_phone" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
}

// TopUp - credit a customer's wallet against cash
// POST /merchant/topups {customer_phone, amount}
func (h *Handler) TopUp(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req topupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if !req.Amount.IsPositive() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": fees.ErrInvalidAmount.Error()})
	}

	t, q, err := h.svc.TopUp(c.Request().Context(), uid, req.CustomerPhone, req.Amount)
	if err != nil {
		return fail(c, err, "top up")
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"topup":         t,
		"commission":    q.Commission,
		"customer_pays": q.CustomerPays,
		"wallet_debit":  q.WalletDebit,
		"message":       "Collect " + q.CustomerPays.StringFixed(2) + " DZD from the customer",
	})
}

// History - GET /merchant/topups
func (h *Handler) History(c echo.Context) error {
	uid, _ := c.Get("user_id").(string)
	items, err := h.svc.History(c.Request().Context(), uid, 100)
	if err != nil {
		return fail(c, err, "list top-ups")
	}
	return c.JSON(http.StatusOK, echo.Map{"topups": items})
}

type promoteRequest struct {
	UserID       string    `json:"user_id" validate:"required"`
	BusinessName string    `json:"business_name" validate:"required,max=120"`
	Tier         fees.Tier `json:"tier" validate:"omitempty,oneof=bronze silver gold platinum"`
}

// Promote - POST /admin/merchants {user_id, business_name, tier?}
func (h *Handler) Promote(c echo.Context) error {
	var req promoteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if req.Tier == "" {
		req.Tier = fees.TierBronze
	}
	a, err := h.svc.Promote(c.Request().Context(), req.UserID, req.BusinessName, req.Tier)
	if err != nil {
		return fail(c, err, "promote merchant")
	}
	return c.JSON(http.StatusOK, a)
}

// SetActive - POST /admin/merchants/:id/active {active}
func (h *Handler) SetActive(c echo.Context) error {
	var req struct {
		Active bool `json:"active"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}
	if err := h.svc.SetActive(c.Request().Context(), c.Param("id"), req.Active); err != nil {
		return fail(c, err, "update merchant")
	}
	return c.JSON(http.StatusOK, echo.Map{"user_id": c.Param("id"), "is_active": req.Active})
}

// Register mounts merchant routes. merchants is the /merchant group, already
// guarded by the merchant role.
func (h *Handler) Register(merchants, admin *echo.Group) {
	merchants.GET("/account", h.Account)
	merchants.POST("/topups", h.TopUp)
	merchants.GET("/topups", h.History)

	admin.POST("/merchants", h.Promote)
	admin.POST("/merchants/:id/active", h.SetActive)
}
