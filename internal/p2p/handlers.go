package p2p

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/opay-dz/opay/internal/wallet"
)

// Handler exposes the P2P service over HTTP.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// StatusFor maps service errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotParticipant):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrAlreadyRated):
		return http.StatusConflict
	case errors.Is(err, wallet.ErrInsufficientFunds), errors.Is(err, wallet.ErrWalletNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrSelfTrade), errors.Is(err, ErrAdInactive),
		errors.Is(err, ErrBelowMinimum), errors.Is(err, ErrAboveMaximum),
		errors.Is(err, ErrAboveAvailable), errors.Is(err, ErrInvalidAd),
		errors.Is(err, ErrNoPaymentMethods), errors.Is(err, ErrInvalidResolution),
		errors.Is(err, ErrReasonRequired), errors.Is(err, ErrInvalidRating),
		errors.Is(err, ErrEmptyMessage):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func fail(c echo.Context, err error, op string) error {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Str("op", op).Msg("p2p request failed")
		return c.JSON(status, echo.Map{"error": "failed to " + op})
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}

func caller(c echo.Context) (Actor, bool) {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return Actor{}, false
	}
	role, _ := c.Get("role").(string)
	return Actor{ID: userID, Admin: role == "admin"}, true
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

// =========================
// Ads
// =========================

type createAdRequest struct {
	AdType               AdType          `json:"ad_type" validate:"required,oneof=buy sell"`
	Amount               decimal.Decimal `json:"amount"`
	MinAmount            decimal.Decimal `json:"min_amount"`
	MaxAmount            decimal.Decimal `json:"max_amount"`
	PricePerUnit         decimal.Decimal `json:"price_per_unit"`
	PaymentMethods       []string        `json:"payment_methods" validate:"required,min=1"`
	Terms                string          `json:"terms" validate:"max=1000"`
	PaymentWindowMinutes int             `json:"payment_window_minutes" validate:"gte=0,lte=120"`
}

// POST /p2p/ads
func (h *Handler) CreateAd(c echo.Context) error {
	me, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	var req createAdRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	ad, err := h.svc.CreateAd(c.Request().Context(), Ad{
		UserID:               me.ID,
		AdType:               req.AdType,
		Amount:               req.Amount,
		MinAmount:            req.MinAmount,
		MaxAmount:            req.MaxAmount,
		PricePerUnit:         req.PricePerUnit,
		PaymentMethods:       req.PaymentMethods,
		Terms:                req.Terms,
		PaymentWindowMinutes: req.PaymentWindowMinutes,
	})
	if err != nil {
		return fail(c, err, "create ad")
	}
	return c.JSON(http.StatusCreated, ad)
}

// GET /p2p/ads?type=buy|sell
func (h *Handler) ListAds(c echo.Context) error {
	adType := AdType(c.QueryParam("type"))
	if adType != "" && adType != AdBuy && adType != AdSell {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "type must be buy or sell"})
	}
	ads, err := h.svc.ListAds(c.Request().Context(), adType)
	if err != nil {
		return fail(c, err, "list ads")
	}
	if ads == nil {
		ads = []Ad{}
	}
	return c.JSON(http.StatusOK, echo.Map{"ads": ads})
}

// GET /p2p/ads/:id
func (h *Handler) GetAd(c echo.Context) error {
	ad, err := h.svc.GetAd(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, err, "load ad")
	}
	return c.JSON(http.StatusOK, ad)
}

// POST /p2p/ads/:id/deactivate
func (h *Handler) DeactivateAd(c echo.Context) error {
	me, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	if err := h.svc.DeactivateAd(c.Request().Context(), c.Param("id"), me.ID); err != nil {
		return fail(c, err, "deactivate ad")
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "ad deactivated"})
}

// =========================
// Orders
// =========================

type createOrderRequest struct {
	AdID           string          `json:"ad_id" validate:"required"`
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotency_key" validate:"max=100"`
}

// POST /p2p/orders
// The Idempotency-Key header wins over the body field.
func (h *Handler) CreateOrder(c echo.Context) error {
	me, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	var req createOrderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if !req.Amount.IsPositive() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount must be positive"})
	}
	key := req.IdempotencyKey
	if hdr := c.Request().Header.Get("Idempotency-Key"); hdr != "" {
		key = hdr
	}

	o, created, err := h.svc.CreateOrder(c.Request().Context(), me.ID, req.AdID, req.Amount, key)
	if err != nil {
		return fail(c, err, "create order")
	}
	if !created {
		return c.JSON(http.StatusOK, o)
	}
	return c.JSON(http.StatusCreated, o)
}

// GET /p2p/orders
func (h *Handler) ListOrders(c echo.Context) error {
	me, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	orders, err := h.svc.ListOrders(c.Request().Context(), me.ID)
	if err != nil {
		return fail(c, err, "list orders")
	}
	if orders == nil {
		orders = []Order{}
	}
	return c.JSON(http.StatusOK, echo.Map{"orders": orders})
}

// GET /p2p/orders/:id
func (h *Handler) GetOrder(c echo.Context) error {
	me, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	o, err := h.svc.GetOrder(c.Request().Context(), c.Param("id"), me)
	if err != nil {
		return fail(c, err, "load order")
	}
	return c.JSON(http.StatusOK, o)
}

// POST /p2p/orders/:id/mark-paid
func (h *Handler) MarkPaid(c echo.Context) error {
	return h.transition(c, ActionMarkPaid)
}

// POST /p2p/orders/:id/confirm
func (h *Handler) ConfirmPayment(c echo.Context) error {
	return h.transition(c, ActionConfirm)
}

// POST /p2p/orders/:id/release
func (h *Handler) Release(c echo.Context) error {
	return h.transition(c, ActionRelease)
}

// POST /p2p/orders/:id/cancel
func (h *Handler) Cancel(c echo.Context) error {
	return h.transition(c, ActionCancel)
}

// POST /p2p/orders/:id/dispute {reason}
func (h *Handler) Dispute(c echo.Context) error {
	me, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	o, err := h.svc.Dispute(c.Request().Context(), c.Param("id"), me.ID, req.Reason)
	if err != nil {
		return fail(c, err, "dispute order")
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) transition(c echo.Context, action Action) error {
	me, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	o, err := h.svc.Transition(c.Request().Context(), c.Param("id"), Actor{ID: me.ID}, action, "")
	if err != nil {
		return fail(c, err, string(action))
	}
	return c.JSON(http.StatusOK, o)
}

// POST /p2p/orders/:id/rate {rating, comment}
func (h *Handler) Rate(c echo.Context) error {
	me, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	var req struct {
		Rating  int    `json:"rating" validate:"required,min=1,max=5"`
		Comment string `json:"comment" validate:"max=500"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	r, err := h.svc.Rate(c.Request().Context(), c.Param("id"), me.ID, req.Rating, req.Comment)
	if err != nil {
		return fail(c, err, "rate order")
	}
	return c.JSON(http.StatusCreated, r)
}

// GET /p2p/traders/:id
func (h *Handler) TraderProfile(c echo.Context) error {
	p, err := h.svc.TraderProfile(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, err, "load trader profile")
	}
	return c.JSON(http.StatusOK, p)
}

// =========================
// Admin
// =========================

// GET /admin/p2p/disputes
func (h *Handler) ListDisputes(c echo.Context) error {
	orders, err := h.svc.ListDisputes(c.Request().Context())
	if err != nil {
		return fail(c, err, "list disputes")
	}
	if orders == nil {
		orders = []Order{}
	}
	return c.JSON(http.StatusOK, echo.Map{"disputes": orders})
}

// POST /admin/p2p/orders/:id/resolve {resolution: release|refund}
func (h *Handler) Resolve(c echo.Context) error {
	me, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	var req struct {
		Resolution string `json:"resolution"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	o, err := h.svc.Resolve(c.Request().Context(), c.Param("id"), me.ID, req.Resolution)
	if err != nil {
		return fail(c, err, "resolve dispute")
	}
	return c.JSON(http.StatusOK, o)
}

// POST /admin/p2p/traders/:id/verify {verified}
func (h *Handler) SetVerifiedTrader(c echo.Context) error {
	var req struct {
		Verified bool `json:"verified"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := h.svc.SetVerifiedTrader(c.Request().Context(), c.Param("id"), req.Verified); err != nil {
		return fail(c, err, "update trader")
	}
	return c.JSON(http.StatusOK, echo.Map{"user_id": c.Param("id"), "is_verified_trader": req.Verified})
}

// Register mounts the user routes on g and the admin routes on admin.
func (h *Handler) Register(g, admin *echo.Group) {
	g.POST("/p2p/ads", h.CreateAd)
	g.GET("/p2p/ads", h.ListAds)
	g.GET("/p2p/ads/:id", h.GetAd)
	g.POST("/p2p/ads/:id/deactivate", h.DeactivateAd)

	g.POST("/p2p/orders", h.CreateOrder)
	g.GET("/p2p/orders", h.ListOrders)
	g.GET("/p2p/orders/:id", h.GetOrder)
	g.POST("/p2p/orders/:id/mark-paid", h.MarkPaid)
	g.POST("/p2p/orders/:id/confirm", h.ConfirmPayment)
	g.POST("/p2p/orders/:id/release", h.Release)
	g.POST("/p2p/orders/:id/cancel", h.Cancel)
	g.POST("/p2p/orders/:id/dispute", h.Dispute)
	g.POST("/p2p/orders/:id/rate", h.Rate)
	g.GET("/p2p/traders/:id", h.TraderProfile)

	admin.GET("/p2p/disputes", h.ListDisputes)
	admin.POST("/p2p/orders/:id/resolve", h.Resolve)
	admin.POST("/p2p/traders/:id/verify", h.SetVerifiedTrader)
}
