// Command admintoken prints a signed admin bearer token for the /admin
// routes of the api.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/fastprodman/coinledger/internal/auth"
	"github.com/fastprodman/coinledger/pkg/envconf"
)

type tokenConfig struct {
	Secret string `env:"ADMIN_JWT_SECRET"`
}

func main() {
	subject := flag.String("sub", "operator", "token subject")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	err := run(*subject, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "admintoken: %v\n", err)
		os.Exit(1)
	}
}

func run(subject string, ttl time.Duration) error {
	_ = godotenv.Load()

	cfg := new(tokenConfig)

	err := envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	tm, err := auth.NewTokenManager(cfg.Secret, ttl)
	if err != nil {
		return err
	}

	token, exp, err := tm.Issue(subject, auth.RoleAdmin)
	if err != nil {
		return err
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires at %s\n", exp.Format(time.RFC3339))

	return nil
}
