// Command souk-token mints HS256 session tokens for local development.
//
// Production tokens come from the accounts service; this tool only exists so
// curl, websocket clients and the smoke script can talk to a dev server.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"souk/internal/auth"
)

func main() {
	var (
		secret   = flag.String("secret", os.Getenv("SOUK_JWT_SECRET"), "JWT secret (default: SOUK_JWT_SECRET)")
		userID   = flag.String("user", "", "User id claim (required)")
		username = flag.String("username", "", "Username claim (default: the user id)")
		ttl      = flag.Duration("ttl", time.Hour, "Token lifetime")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatalf("missing -secret and SOUK_JWT_SECRET is unset")
	}
	if strings.TrimSpace(*userID) == "" {
		fatalf("missing -user")
	}
	if strings.TrimSpace(*username) == "" {
		*username = *userID
	}

	v, err := auth.NewVerifier(*secret)
	if err != nil {
		fatalf("verifier: %v", err)
	}

	token, err := v.Issue(*userID, *username, *ttl)
	if err != nil {
		fatalf("issue: %v", err)
	}

	fmt.Println(token)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "souk-token: "+format+"\n", args...)
	os.Exit(1)
}
