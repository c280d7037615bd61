package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/opay-dz/opay/internal/db"
	"github.com/opay-dz/opay/internal/logging"
	"github.com/opay-dz/opay/internal/middleware"
	"github.com/opay-dz/opay/internal/referral"
	"github.com/opay-dz/opay/internal/utils"
	"github.com/opay-dz/opay/internal/wallet"
)

var logger = logging.NewPackageLogger("auth")

// Referrer books a referral inside the signup transaction.
type Referrer interface {
	RecordSignup(ctx context.Context, tx pgx.Tx, referredID, code string) error
}

type Handler struct {
	pool            *pgxpool.Pool
	secret          string
	ttl             time.Duration
	bootstrapSecret string
	referrals       Referrer
}

func NewHandler(pool *pgxpool.Pool, secret string, ttl time.Duration, bootstrapSecret string, referrals Referrer) *Handler {
	return &Handler{pool: pool, secret: secret, ttl: ttl, bootstrapSecret: bootstrapSecret, referrals: referrals}
}

type SignupRequest struct {
	Name         string `json:"name" validate:"required,max=100"`
	Email        string `json:"email" validate:"required,email"`
	Phone        string `json:"phone" validate:"required,numeric,len=10"`
	Password     string `json:"password" validate:"required,min=6"`
	ReferralCode string `json:"referral_code" validate:"omitempty,len=8,alphanum"`
}

type TokenResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

var errEmailTaken = errors.New("email already registered")

// ===== Signup =====
// POST /auth/signup
func (h *Handler) Signup(c echo.Context) error {
	req := new(SignupRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "server error"})
	}

	ctx := c.Request().Context()
	var userID string
	err = db.WithTx(ctx, h.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO profiles (name, email, phone, password, role)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id::text
		`, strings.TrimSpace(req.Name), req.Email, req.Phone, string(hashed), middleware.RoleUser).Scan(&userID)
		if db.IsUniqueViolation(err) {
			return errEmailTaken
		}
		if err != nil {
			return err
		}
		if err := wallet.Open(ctx, tx, userID); err != nil {
			return err
		}
		if req.ReferralCode != "" && h.referrals != nil {
			return h.referrals.RecordSignup(ctx, tx, userID, req.ReferralCode)
		}
		return nil
	})
	switch {
	case errors.Is(err, errEmailTaken):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, referral.ErrUnknownCode), errors.Is(err, referral.ErrSelfReferral):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case err != nil:
		logger.Error().Err(err).Msg("signup failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create account"})
	}

	token, err := utils.IssueToken(h.secret, userID, middleware.RoleUser, h.ttl)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token generation failed"})
	}
	logger.Info().Str(logging.USER, userID).Bool("referred", req.ReferralCode != "").Msg("account created")
	return c.JSON(http.StatusCreated, TokenResponse{Token: token, UserID: userID, Role: middleware.RoleUser})
}

// Register mounts the auth routes. public carries the rate limiter, protected the JWT check.
func (h *Handler) Register(public, protected, admin *echo.Group) {
	public.POST("/signup", h.Signup)
	public.POST("/login", h.Login)
	public.POST("/password/reset", h.ResetPassword)
	public.POST("/bootstrap-admin", h.BootstrapAdmin)

	protected.GET("/auth/me", h.Me)
	protected.POST("/auth/password", h.ChangePassword)

	admin.POST("/users/:id/password-reset", h.IssuePasswordReset)
}
