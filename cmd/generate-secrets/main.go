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
	"github.com/staylet/rental-booking-backend/internal/utils"
	"github.com/staylet/rental-booking-backend/pkg/jwt"
)

func main() {
	var (
		devToken bool
		userID   string
		email    string
		roles    string
		expiry   time.Duration
	)
	flag.BoolVar(&devToken, "dev-token", false, "issue an access token signed with JWT_SECRET instead of generating a secret")
	flag.StringVar(&userID, "user", "", "user ID for -dev-token (random when empty)")
	flag.StringVar(&email, "email", "dev@staylet.local", "email claim for -dev-token")
	flag.StringVar(&roles, "roles", "guest", "comma-separated roles for -dev-token")
	flag.DurationVar(&expiry, "expiry", 24*time.Hour, "lifetime of the -dev-token")
	flag.Parse()

	if devToken {
		issueDevToken(userID, email, roles, expiry)
		return
	}

	fmt.Println("===========================================")
	fmt.Println("JWT Secret Generator for Staylet")
	fmt.Println("===========================================")
	fmt.Println()

	secret, err := utils.GenerateSecret(64)
	if err != nil {
		log.Fatalf("Failed to generate secret: %v", err)
	}

	fmt.Println("Secret generated successfully!")
	fmt.Println()
	fmt.Println("Add this to your .env file:")
	fmt.Println()
	fmt.Printf("JWT_SECRET=%s\n", secret)
	fmt.Println()
	fmt.Println("IMPORTANT: Keep this secret safe and never commit it to version control!")
	fmt.Println("===========================================")
}

func issueDevToken(rawUserID, email, roles string, expiry time.Duration) {
	_ = godotenv.Load()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}

	id := uuid.New()
	if rawUserID != "" {
		parsed, err := uuid.Parse(rawUserID)
		if err != nil {
			log.Fatalf("Invalid -user: %v", err)
		}
		id = parsed
	}

	var roleList []string
	for _, r := range strings.Split(roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roleList = append(roleList, r)
		}
	}

	token, err := jwt.NewService(secret, expiry).GenerateAccessToken(id, email, roleList)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}

	fmt.Printf("USER_ID=%s\n", id)
	fmt.Printf("Authorization: Bearer %s\n", token)
}
