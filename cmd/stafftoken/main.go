// Command stafftoken prints a signed JWT for a door device or organizer.
//
//	stafftoken -sub door-1 -role STAFF -ttl 12h
//
// JWT_SECRET is read from the environment or a .env file.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/event-checkin/internal/middleware"
	"github.com/iliyamo/event-checkin/internal/utils"
)

func main() {
	sub := flag.String("sub", "door", "token subject, e.g. a device or staff name")
	role := flag.String("role", middleware.RoleStaff, "STAFF or ADMIN")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set")
		os.Exit(1)
	}

	r := strings.ToUpper(*role)
	if r != middleware.RoleStaff && r != middleware.RoleAdmin {
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(2)
	}

	tok, err := utils.NewAccessToken(secret, *sub, r, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(tok.Token)
	fmt.Fprintf(os.Stderr, "expires %s\n", tok.Exp.Format(time.RFC3339))
}
