// Command devtoken mints a bearer token signed with JWT_SECRET, for calling
// the API before an identity provider is wired in front of it.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"storefront/internal/config"
	"storefront/internal/utils"
)

func main() {
	userID := flag.String("user", "dev-user", "user id claim")
	email := flag.String("email", "dev@example.com", "email claim")
	role := flag.String("role", "", `role claim, "admin" for the back office`)
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	cfg := config.Load()
	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET is not set")
		os.Exit(1)
	}

	token, err := utils.SignToken([]byte(cfg.JWTSecret), *userID, *email, *role, *ttl)
	if err != nil {
		slog.Error("sign token", "err", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
