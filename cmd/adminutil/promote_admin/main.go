package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/opay-dz/opay/internal/config"
	"github.com/opay-dz/opay/internal/db"
	"github.com/opay-dz/opay/internal/logging"
	"github.com/opay-dz/opay/internal/middleware"
)

func main() {
	email := flag.String("email", "", "Email of the user to promote to admin")
	demote := flag.Bool("demote", false, "Return the user to the plain user role instead")
	flag.Parse()

	if *email == "" {
		fmt.Fprintln(os.Stderr, "usage: promote_admin -email user@example.com [-demote]")
		os.Exit(2)
	}

	cfg := config.Load()
	logging.Configure(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database unavailable")
	}
	defer pool.Close()

	// Make sure the profiles table exists before touching it (idempotent)
	db.EnsureSchema(ctx, pool)

	role := middleware.RoleAdmin
	if *demote {
		role = middleware.RoleUser
	}
	addr := strings.ToLower(strings.TrimSpace(*email))
	ct, err := pool.Exec(ctx, `UPDATE profiles SET role = $2 WHERE email = $1`, addr, role)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to update role")
	}
	if ct.RowsAffected() == 0 {
		log.Fatal().Str("email", addr).Msg("no user found")
	}

	fmt.Printf("User %s is now %s.\n", addr, role)
}
