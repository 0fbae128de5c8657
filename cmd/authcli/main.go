package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/bonchi-health/bonchi_api/internal/client"
)

const usage = `usage: authcli [-api URL] [-session FILE] <command> [flags]

commands:
  register    -email -password -first-name -district -state -gender [-middle-name -phone]
  login       -email -password
  send-otp    -phone
  verify-otp  -phone -otp -session-id [-first-name -district -state -gender -email]
  me
  logout
`

func main() {
	_ = godotenv.Load()

	global := flag.NewFlagSet("authcli", flag.ExitOnError)
	apiURL := global.String("api", envOr("BONCHI_API_URL", "http://localhost:3001"), "API base URL")
	sessionFile := global.String("session", defaultSessionFile(), "file holding the signed-in token")
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	_ = global.Parse(os.Args[1:])

	if global.NArg() < 1 {
		global.Usage()
		os.Exit(2)
	}

	c := client.New(*apiURL, client.NewFileStore(*sessionFile))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, c, global.Arg(0), global.Args()[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c *client.Client, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password")
	phone := fs.String("phone", "", "10-digit mobile number")
	code := fs.String("otp", "", "6-digit code")
	sessionID := fs.Int64("session-id", 0, "OTP session id from send-otp")
	firstName := fs.String("first-name", "", "first name")
	middleName := fs.String("middle-name", "", "middle name")
	district := fs.String("district", "", "district")
	state := fs.String("state", "", "state")
	gender := fs.String("gender", "", "MALE, FEMALE, OTHER or PREFER_NOT_TO_SAY")
	if err := fs.Parse(args); err != nil {
		return err
	}

	profile := client.Profile{
		FirstName:  *firstName,
		MiddleName: optional(*middleName),
		District:   *district,
		State:      *state,
		Gender:     *gender,
	}

	switch cmd {
	case "register":
		profile.Phone = optional(*phone)
		env, err := c.RegisterEmail(ctx, *email, *password, profile)
		if err != nil {
			return err
		}
		return printJSON(env)
	case "login":
		env, err := c.LoginEmail(ctx, *email, *password)
		if err != nil {
			return err
		}
		return printJSON(env)
	case "send-otp":
		id, err := c.SendOTP(ctx, *phone)
		if err != nil {
			return err
		}
		fmt.Printf("OTP sent. Verify with: authcli verify-otp -phone %s -otp <code> -session-id %d\n", *phone, id)
		return nil
	case "verify-otp":
		c.SetSessionID(*sessionID)
		var p *client.Profile
		if *firstName != "" {
			profile.Email = optional(*email)
			p = &profile
		}
		env, err := c.VerifyOTP(ctx, *phone, *code, p)
		if err != nil {
			return err
		}
		return printJSON(env)
	case "me":
		user, err := c.Me(ctx)
		if err != nil {
			return err
		}
		return printJSON(user)
	case "logout":
		if err := c.Logout(ctx); err != nil {
			return err
		}
		fmt.Println("Logged out")
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".bonchi-session.json"
	}
	return filepath.Join(dir, "bonchi", "session.json")
}
