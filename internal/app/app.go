// Package app builds the server's collaborators from Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"

	"hancock/internal/config"
	"hancock/internal/db"
	identityservice "hancock/internal/identity/service"
	"hancock/internal/notify"
	"hancock/internal/security"
	sessionrepo "hancock/internal/session/repository"
	signaturerepo "hancock/internal/signature/repository"
)

// NewLogger returns a JSON slog logger writing to w at level (debug, info, warn, error).
func NewLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// Stores holds the configured session and artifact stores.
type Stores struct {
	Sessions  sessionrepo.Repository
	Artifacts signaturerepo.Repository
	closers   []io.Closer
}

// Close releases database and Redis connections.
func (s *Stores) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// OpenStores opens the stores selected by SESSION_STORE and ARTIFACT_STORE.
func OpenStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	st := &Stores{}
	var err error
	switch cfg.SessionStore {
	case "memory":
		st.Sessions = sessionrepo.NewMemoryRepository()
	case "postgres":
		conn, openErr := db.Open(cfg.DatabaseURL)
		if openErr != nil {
			return nil, fmt.Errorf("postgres: %w", openErr)
		}
		st.closers = append(st.closers, conn)
		st.Sessions = sessionrepo.NewPostgresRepository(conn)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if pingErr := client.Ping(ctx).Err(); pingErr != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis: %w", pingErr)
		}
		st.closers = append(st.closers, client)
		st.Sessions = sessionrepo.NewRedisRepository(client, cfg.RedisKeyPrefix)
	default:
		st.Sessions, err = sessionrepo.NewFileRepository(filepath.Join(cfg.DataDir, "signatures"))
	}
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("session store: %w", err)
	}

	switch cfg.ArtifactStore {
	case "memory":
		st.Artifacts = signaturerepo.NewMemoryRepository()
	case "minio":
		st.Artifacts, err = signaturerepo.NewMinIORepository(cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOBucket, cfg.MinIOUseSSL)
	default:
		st.Artifacts, err = signaturerepo.NewFileRepository(filepath.Join(cfg.DataDir, "signatures"))
	}
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("artifact store: %w", err)
	}
	return st, nil
}

// NewLinkTokens returns the signing-link token provider. Without configured keys an
// ephemeral ECDSA key is generated; links then do not survive a restart.
func NewLinkTokens(cfg *config.Config) (*security.LinkTokenProvider, error) {
	if cfg.LinkTokenPrivateKey == "" {
		return security.NewEphemeralLinkTokenProvider(cfg.LinkTokenIssuer, cfg.LinkTokenTTLDuration())
	}
	priv, err := security.ParsePrivateKey(cfg.LinkTokenPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("link token private key: %w", err)
	}
	pub, err := security.ParsePublicKey(cfg.LinkTokenPublicKey)
	if err != nil {
		return nil, fmt.Errorf("link token public key: %w", err)
	}
	return security.NewLinkTokenProvider(priv, pub, cfg.LinkTokenIssuer, cfg.LinkTokenTTLDuration()), nil
}

// NewResolver returns a resolver holding every configured API key.
func NewResolver(cfg *config.Config) *identityservice.StaticResolver {
	r := identityservice.NewStaticResolver(nil)
	for _, e := range cfg.APIKeyEntries() {
		r.Add(e.Organization, e.Secret)
	}
	return r
}

// NewNotifier returns the Notifier selected by NOTIFIER and a closer for it.
func NewNotifier(cfg *config.Config, logger *slog.Logger) (notify.Notifier, io.Closer) {
	switch cfg.Notifier {
	case "webhook":
		return notify.NewWebhookNotifier(cfg.NotifyWebhookURL, cfg.NotifyWebhookSecret), nopCloser{}
	case "kafka":
		k := notify.NewKafkaNotifier(cfg.KafkaBrokersList(), cfg.NotifyKafkaTopic)
		if k != nil {
			return k, k
		}
	}
	return notify.NewLogNotifier(logger), nopCloser{}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
