package user

import (
	"time"

	"github.com/opay-dz/opay/internal/p2p"
)

// PublicProfile is what other users see on an ad or order.
type PublicProfile struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Role       string             `json:"role"`
	IsVerified bool               `json:"is_verified"`
	CreatedAt  time.Time          `json:"created_at"`
	Trader     *p2p.TraderProfile `json:"trader,omitempty"`
}
