// seed creates a demo signature session in the configured stores and prints its signing link.
// The link is only usable by a running server that shares the same stores and
// LINK_TOKEN_PRIVATE_KEY/LINK_TOKEN_PUBLIC_KEY. Idempotent: re-running replaces the pending demo session.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"hancock/internal/app"
	"hancock/internal/config"
	identitydomain "hancock/internal/identity/domain"
	"hancock/internal/session/domain"
	"hancock/internal/session/service"
)

func main() {
	title := flag.String("title", "Demo NDA", "Session title")
	declaration := flag.String("declaration", "I agree to keep the demo confidential.", "Declaration to sign")
	email := flag.String("email", "signee@example.com", "Signee e-mail")
	redirect := flag.String("redirect", "https://example.com/done", "Redirect URI after signing")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.SessionStore == "memory" {
		log.Fatal("seed: SESSION_STORE=memory would discard the session on exit")
	}
	ctx := context.Background()
	logger := app.NewLogger(os.Stderr, cfg.LogLevel)

	stores, err := app.OpenStores(ctx, cfg)
	if err != nil {
		log.Fatalf("stores: %v", err)
	}
	defer stores.Close()
	tokens, err := app.NewLinkTokens(cfg)
	if err != nil {
		log.Fatalf("link tokens: %v", err)
	}
	if cfg.LinkTokenPrivateKey == "" {
		logger.Warn("seed: no LINK_TOKEN_PRIVATE_KEY; the printed link will not validate on the server")
	}

	svc, err := service.NewSessionService(service.Deps{
		Sessions:  stores.Sessions,
		Artifacts: stores.Artifacts,
		Tokens:    tokens,
		Logger:    logger,
	}, service.Options{BaseURL: cfg.PublicBaseURL})
	if err != nil {
		log.Fatalf("session service: %v", err)
	}

	res, err := svc.Create(ctx, identitydomain.Organization{Name: config.DevAPIKeyOwner}, domain.Details{
		Title:       *title,
		Declaration: *declaration,
		SigneeEmail: *email,
		RedirectURI: *redirect,
	})
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	fmt.Printf("sid:         %s\n", res.Session.SID)
	fmt.Printf("signing url: %s\n", res.SigningURL)
	fmt.Printf("expires:     %s\n", res.LinkExpiresAt.Format("2006-01-02 15:04 MST"))
}
