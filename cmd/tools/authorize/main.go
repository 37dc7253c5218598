// authorize: 자격 증명 세트 하나에 대해 OAuth 동의 절차를 수행하고 토큰을 저장한다.
//
//	go run ./cmd/tools/authorize -set 1
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/oauth2"

	"github.com/kapu/youtube-quota-broker-go/internal/app"
	"github.com/kapu/youtube-quota-broker-go/internal/config"
	"github.com/kapu/youtube-quota-broker-go/internal/domain"
	"github.com/kapu/youtube-quota-broker-go/internal/service/credstore"
	"github.com/kapu/youtube-quota-broker-go/internal/service/youtube"
	"github.com/kapu/youtube-quota-broker-go/internal/util"
)

func main() {
	slot := flag.Int("set", 1, "authorize credential slot number (YT_CREDENTIALS_FILE_n)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := util.NewLoggerWithLevel(cfg.Logging.Level)

	setID := fmt.Sprintf("set_%d", *slot)
	var setCfg *domain.CredentialSetConfig
	for _, set := range cfg.Credentials.Sets {
		if set.ID == setID {
			s := set
			setCfg = &s
			break
		}
	}
	if setCfg == nil {
		fmt.Fprintf(os.Stderr, "Credential slot %d is not configured (YT_CREDENTIALS_FILE_%d)\n", *slot, *slot)
		os.Exit(1)
	}

	oauthCfg, err := youtube.LoadOAuthConfig(setCfg.CredentialsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load OAuth config: %v\n", err)
		os.Exit(1)
	}

	authURL := oauthCfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Printf("Open the following URL in your browser and authorize %s:\n\n%s\n\n", setID, authURL)
	fmt.Print("Enter the authorization code: ")

	reader := bufio.NewReader(os.Stdin)
	code, err := reader.ReadString('\n')
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read authorization code: %v\n", err)
		os.Exit(1)
	}
	code = strings.TrimSpace(code)

	ctx := context.Background()
	token, err := oauthCfg.Exchange(ctx, code)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to exchange authorization code: %v\n", err)
		os.Exit(1)
	}

	postgres, err := app.ProvidePostgresService(cfg, logger)
	if err != nil {
		logger.Warn("Postgres unavailable, falling back to token file", slog.Any("error", err))
		postgres = nil
	}

	store, err := app.ProvideCredentialStore(cfg, postgres, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build credential store: %v\n", err)
		os.Exit(1)
	}

	if err := store.Save(ctx, &credstore.Record{SetID: setID, Token: token}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Token saved for %s (ref: %s)\n", setID, setCfg.TokenRef)
}
