package alerts

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/opay-dz/opay/internal/db"
	"github.com/opay-dz/opay/internal/logging"
)

// CreateNotification inserts a notification item. q may be a transaction so
// the notification commits together with the change it describes.
func CreateNotification(ctx context.Context, q db.Querier, n Notification) error {
	_, err := q.Exec(ctx,
		`INSERT INTO notifications (user_id, type, title, body, reference, metadata)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, '')::jsonb)`,
		n.UserID, n.Type, n.Title, n.Body, n.Reference, n.Metadata,
	)
	return errors.Wrap(err, "insert notification")
}

// Handler serves the caller's in-app notifications.
type Handler struct {
	pool *pgxpool.Pool
}

func NewHandler(pool *pgxpool.Pool) *Handler {
	return &Handler{pool: pool}
}

func (h *Handler) Register(g *echo.Group) {
	g.GET("/notifications", h.List)
	g.POST("/notifications/read", h.MarkAllRead)
	g.POST("/notifications/:id/read", h.MarkRead)
}

// List - GET /notifications?unread=true, newest first, with the unread count
func (h *Handler) List(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	unreadOnly := c.QueryParam("unread") == "true"
	ctx := c.Request().Context()

	rows, err := h.pool.Query(ctx, `
		SELECT id::text, type, title, COALESCE(body, ''), COALESCE(reference, ''),
		       COALESCE(metadata::text, ''), created_at, read_at
		FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR read_at IS NULL)
		ORDER BY created_at DESC
		LIMIT 100`, uid, unreadOnly)
	if err != nil {
		logger.Error().Err(err).Str(logging.USER, uid).Msg("list notifications")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load notifications"})
	}
	defer rows.Close()

	items := []Notification{}
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Type, &n.Title, &n.Body, &n.Reference, &n.Metadata, &n.CreatedAt, &n.ReadAt); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to parse notification"})
		}
		items = append(items, n)
	}

	var unread int
	if err := h.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read_at IS NULL`, uid).Scan(&unread); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to count notifications"})
	}
	return c.JSON(http.StatusOK, echo.Map{"notifications": items, "unread": unread})
}

// MarkRead - POST /notifications/:id/read
func (h *Handler) MarkRead(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	tag, err := h.pool.Exec(c.Request().Context(),
		`UPDATE notifications SET read_at = NOW() WHERE id = $1 AND user_id = $2 AND read_at IS NULL`,
		c.Param("id"), uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update"})
	}
	if tag.RowsAffected() == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found or already read"})
	}
	return c.NoContent(http.StatusNoContent)
}

// MarkAllRead - POST /notifications/read
func (h *Handler) MarkAllRead(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	tag, err := h.pool.Exec(c.Request().Context(),
		`UPDATE notifications SET read_at = NOW() WHERE user_id = $1 AND read_at IS NULL`, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update"})
	}
	return c.JSON(http.StatusOK, echo.Map{"marked": tag.RowsAffected()})
}
