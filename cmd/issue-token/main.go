package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/stemsi/exam-portal/internal/config"
	"github.com/stemsi/exam-portal/internal/database"
	"github.com/stemsi/exam-portal/internal/logger"
	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/service"
	"golang.org/x/term"
)

// issue-token mints a signed token for local testing and registers it as the
// user's active session.
func main() {
	var (
		userID string
		role   string
		reset  bool
	)
	flag.StringVar(&userID, "user", "", "User id to issue the token for")
	flag.StringVar(&role, "role", string(model.RoleStudent), "Role claim (student or teacher)")
	flag.BoolVar(&reset, "reset", false, "Drop the user's active session first")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if userID == "" {
		fmt.Println("Usage: issue-token -user <id> [-role student|teacher] [-reset]")
		os.Exit(2)
	}
	r := model.Role(role)
	if r != model.RoleStudent && r != model.RoleTeacher {
		log.Fatal().Str("role", role).Msg("Unknown role")
	}

	// Secret
	if os.Getenv("JWT_SECRET") == "" {
		fmt.Print("JWT_SECRET is not set. Enter signing secret: ")
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read secret")
		}
		if len(secret) == 0 {
			log.Fatal().Msg("Signing secret is required")
		}
		cfg.JWTSecret = string(secret)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	authService := service.NewAuthService(cfg, rdb)

	if reset {
		if err := authService.ResetSession(ctx, userID); err != nil {
			log.Fatal().Err(err).Msg("Failed to reset session")
		}
		log.Info().Str("user_id", userID).Msg("Session reset")
	}

	token, err := authService.GenerateToken(ctx, userID, r)
	if err != nil {
		if errors.Is(err, service.ErrSessionAlreadyActive) {
			log.Fatal().Str("user_id", userID).Msg("User already has an active session, rerun with -reset")
		}
		log.Fatal().Err(err).Msg("Failed to issue token")
	}

	fmt.Println(token)
}
