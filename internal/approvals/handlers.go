package approvals

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/opay-dz/opay/internal/wallet"
)

// Handler exposes submissions and the admin review queue.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// StatusFor maps review errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnknownKind):
		return http.StatusNotFound
	case errors.Is(err, ErrNotPending):
		return http.StatusConflict
	case errors.Is(err, wallet.ErrInsufficientFunds), errors.Is(err, wallet.ErrInsufficientHold),
		errors.Is(err, wallet.ErrWalletNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNotSubmittable), errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrMissingDetail), errors.Is(err, ErrInvalidDecision):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func fail(c echo.Context, err error, op string) error {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Str("op", op).Str("kind", c.Param("kind")).Msg("approvals request failed")
		return c.JSON(status, echo.Map{"error": "failed to " + op})
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}

type submitRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Details map[string]any  `json:"details"`
}

// Submit - create a pending request of a kind
// POST /requests/:kind {amount, details}
func (h *Handler) Submit(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}
	r, err := h.svc.Submit(c.Request().Context(), uid, c.Param("kind"), req.Amount, req.Details)
	if err != nil {
		return fail(c, err, "submit request")
	}
	return c.JSON(http.StatusCreated, r)
}

// Mine - the caller's requests of a kind
// GET /requests/:kind
func (h *Handler) Mine(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	items, err := h.svc.Mine(c.Request().Context(), uid, c.Param("kind"))
	if err != nil {
		return fail(c, err, "list requests")
	}
	return c.JSON(http.StatusOK, echo.Map{"requests": items})
}

// List - admin queue of a kind
// GET /admin/requests/:kind?status=pending
func (h *Handler) List(c echo.Context) error {
	status := c.QueryParam("status")
	switch status {
	case "", StatusPending, StatusApproved, StatusRejected:
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status filter"})
	}
	items, err := h.svc.List(c.Request().Context(), c.Param("kind"), status)
	if err != nil {
		return fail(c, err, "list requests")
	}
	return c.JSON(http.StatusOK, echo.Map{"requests": items})
}

type reviewRequest struct {
	ProofURL string `json:"proof_url" validate:"omitempty,url"`
	Note     string `json:"note" validate:"max=1000"`
}

func (h *Handler) review(c echo.Context, decision string) error {
	adminID, _ := c.Get("user_id").(string)
	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	r, err := h.svc.Review(c.Request().Context(), adminID, c.Param("kind"), c.Param("id"), decision, req.ProofURL, req.Note)
	if err != nil {
		return fail(c, err, decision+" request")
	}
	return c.JSON(http.StatusOK, r)
}

// Approve - POST /admin/requests/:kind/:id/approve {proof_url?, note?}
func (h *Handler) Approve(c echo.Context) error { return h.review(c, Approve) }

// Reject - POST /admin/requests/:kind/:id/reject {note?}
func (h *Handler) Reject(c echo.Context) error { return h.review(c, Reject) }

// Pending - pending counts per kind for the admin dashboard
// GET /admin/requests/pending
func (h *Handler) Pending(c echo.Context) error {
	counts, err := h.svc.PendingCounts(c.Request().Context())
	if err != nil {
		return fail(c, err, "count pending requests")
	}
	return c.JSON(http.StatusOK, counts)
}

func (h *Handler) Register(g, admin *echo.Group) {
	g.POST("/requests/:kind", h.Submit)
	g.GET("/requests/:kind", h.Mine)

	admin.GET("/requests/pending", h.Pending)
	admin.GET("/requests/:kind", h.List)
	admin.POST("/requests/:kind/:id/approve", h.Approve)
	admin.POST("/requests/:kind/:id/reject", h.Reject)
}
