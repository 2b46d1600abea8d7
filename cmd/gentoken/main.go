// Command gentoken mints development access tokens and secret keys.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/service/auth/tokenmanager"
)

const SecretKeyBytesLen = 32

func main() {
	if err := run(os.Stdout, os.Getenv, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(out io.Writer, getenv func(string) string, args []string) error {
	fs := pflag.NewFlagSet("gentoken", pflag.ContinueOnError)

	secretOnly := fs.Bool("secret", false, "Print new random secret key and exit")
	secretKey := fs.StringP("secret-key", "s", getenv("SECRET_KEY"), "Key to sign the token with")
	userID := fs.StringP("user-id", "u", "", "User id (random if empty)")
	username := fs.StringP("username", "n", "", "Username")
	role := fs.StringP("role", "r", string(models.RoleUser), "Role (user, admin)")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *secretOnly {
		b := make([]byte, SecretKeyBytesLen)
		if _, err := rand.Read(b); err != nil {
			return fmt.Errorf("error while generating secret key: %w", err)
		}
		_, err := fmt.Fprintln(out, hex.EncodeToString(b))
		return err
	}

	if *secretKey == "" {
		return errors.New("secret key is required (--secret-key or SECRET_KEY)")
	}

	user := models.User{ID: uuid.New(), Username: *username, Role: models.Role(*role)}
	if *userID != "" {
		id, err := uuid.Parse(*userID)
		if err != nil {
			return fmt.Errorf("invalid user id: %w", err)
		}
		user.ID = id
	}
	if user.Role != models.RoleUser && user.Role != models.RoleAdmin {
		return fmt.Errorf("unknown role %q", *role)
	}

	tm, err := tokenmanager.New(tokenmanager.Config{SecretKey: *secretKey, AccessTTL: *ttl})
	if err != nil {
		return err
	}
	token, err := tm.Issue(user)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, token.Value)
	return err
}
