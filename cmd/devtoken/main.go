// Command devtoken prints a fresh JWT secret, or signs an access token with
// the configured one so the API can be called without the auth service.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/nipeshtamang/ebus-sub002/internal/utils"
	"github.com/nipeshtamang/ebus-sub002/pkg/jwt"
)

func main() {
	var (
		newSecret = flag.Bool("secret", false, "print a new JWT_SECRET and exit")
		userFlag  = flag.String("user", "", "user id to put in the token (random when empty)")
		roles     = flag.String("roles", "user", "comma separated roles, e.g. user,admin")
		phone     = flag.String("phone", "", "phone claim")
		ttl       = flag.Duration("ttl", 24*time.Hour, "token lifetime")
	)
	flag.Parse()

	if *newSecret {
		secret, err := utils.GenerateSecret(32) // 256-bit
		if err != nil {
			log.Fatalf("Failed to generate secret: %v", err)
		}
		fmt.Printf("JWT_SECRET=%s\n", secret)
		return
	}

	// Optional; lets the tool pick up the same .env as the server
	_ = godotenv.Load()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	issuer := os.Getenv("JWT_ISSUER")
	if issuer == "" {
		issuer = "ebus-auth"
	}

	userID := uuid.New()
	if *userFlag != "" {
		parsed, err := uuid.Parse(*userFlag)
		if err != nil {
			log.Fatalf("Invalid -user: %v", err)
		}
		userID = parsed
	}

	var roleList []string
	for _, r := range strings.Split(*roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roleList = append(roleList, r)
		}
	}

	token, err := jwt.NewService(secret, issuer, *ttl).GenerateAccessToken(userID, *phone, roleList)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}

	fmt.Fprintf(os.Stderr, "user_id=%s roles=%s expires_in=%s\n", userID, strings.Join(roleList, ","), *ttl)
	fmt.Println(token)
}
