// Command devtoken mints a signed access token for local testing against a
// tourneychat server sharing the same JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Tyrowin/tourneychat/internal/config"
	"github.com/Tyrowin/tourneychat/internal/identity"
	"github.com/Tyrowin/tourneychat/internal/logging"
)

func main() {
	_ = godotenv.Load()
	logger := logging.InitFromEnv()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	user := flag.String("user", "", "user id to place in the token subject")
	name := flag.String("name", "", "display name (defaults to the user id)")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	secret := flag.String("secret", cfg.JWTSecret, "HS256 signing secret")
	issuer := flag.String("issuer", cfg.JWTIssuer, "token issuer")
	flag.Parse()

	if *user == "" || *secret == "" {
		flag.Usage()
		os.Exit(2)
	}

	tokens := identity.NewJWTManager(identity.JWTConfig{Secret: *secret, Issuer: *issuer})
	token, err := tokens.Mint(*user, *name, *ttl)
	if err != nil {
		logger.Fatal("mint token", zap.Error(err))
	}
	fmt.Println(token)
}
