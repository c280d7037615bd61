package verification

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/opay-dz/opay/internal/approvals"
	"github.com/opay-dz/opay/internal/logging"
)

var logger = logging.NewPackageLogger("verification")

var ErrAlreadyPending = errors.New("a verification request is already pending")

// Requests is the part of the approvals service verification uses.
type Requests interface {
	Submit(ctx context.Context, userID, kind string, amount decimal.Decimal, details map[string]any) (approvals.Request, error)
	Mine(ctx context.Context, userID, kind string) ([]approvals.Request, error)
}

const kind = "verification"

type Handler struct {
	storage  Storage
	requests Requests
	now      func() time.Time
}

func NewHandler(storage Storage, requests Requests) *Handler {
	return &Handler{storage: storage, requests: requests, now: time.Now}
}

func (h *Handler) save(userID, side string, fh *multipart.FileHeader) (string, error) {
	if fh.Size > MaxFileSize {
		return "", ErrTooLarge
	}
	object, err := ObjectPath(userID, side, fh.Filename, h.now())
	if err != nil {
		return "", err
	}
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := h.storage.Put(object, f); err != nil {
		return "", err
	}
	return object, nil
}

// Submit - upload documents and open a review
// POST /verification (multipart: front required, back and selfie optional)
func (h *Handler) Submit(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx := c.Request().Context()

	existing, err := h.requests.Mine(ctx, uid, kind)
	if err != nil {
		logger.Error().Err(err).Msg("load verification requests")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to submit verification"})
	}
	for _, r := range existing {
		if r.Status == approvals.StatusPending {
			return c.JSON(http.StatusConflict, echo.Map{"error": ErrAlreadyPending.Error()})
		}
	}

	details := map[string]any{}
	for _, side := range []string{"front", "back", "selfie"} {
		fh, err := c.FormFile(side)
		if errors.Is(err, http.ErrMissingFile) {
			if side == "front" {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "front document is required"})
			}
			continue
		}
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid upload"})
		}
		object, err := h.save(uid, side, fh)
		switch {
		case errors.Is(err, ErrInvalidExtension), errors.Is(err, ErrTooLarge), errors.Is(err, ErrInvalidSide):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": side + ": " + err.Error()})
		case err != nil:
			logger.Error().Err(err).Str(logging.USER, uid).Msg("store identity document")
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to store document"})
		}
		details[side+"_path"] = object
	}
	if v := c.FormValue("document_type"); v != "" {
		details["document_type"] = v
	}

	r, err := h.requests.Submit(ctx, uid, kind, decimal.Zero, details)
	if err != nil {
		logger.Error().Err(err).Str(logging.USER, uid).Msg("submit verification")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to submit verification"})
	}
	return c.JSON(http.StatusCreated, r)
}

// Status - GET /verification
func (h *Handler) Status(c echo.Context) error {
	uid, _ := c.Get("user_id").(string)
	items, err := h.requests.Mine(c.Request().Context(), uid, kind)
	if err != nil {
		logger.Error().Err(err).Msg("load verification requests")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load verification"})
	}
	return c.JSON(http.StatusOK, echo.Map{"requests": items})
}

// Document - admins view an uploaded file
// GET /admin/verification/documents/*
func (h *Handler) Document(c echo.Context) error {
	full, err := h.storage.Path(c.Param("*"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	return c.File(full)
}

func (h *Handler) Register(g, admin *echo.Group) {
	g.POST("/verification", h.Submit)
	g.GET("/verification", h.Status)

	admin.GET("/verification/documents/*", h.Document)
}
