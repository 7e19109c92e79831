package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-member/app/mail"
	"github.com/vibast-solutions/ms-go-member/app/oauth"
	"github.com/vibast-solutions/ms-go-member/app/service"
	"github.com/vibast-solutions/ms-go-member/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err = configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}
	return cfg
}

func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeouts.Store)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func newRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeouts.Store)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

func asynqRedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

// newEmailSender sends inline over SMTP unless the mail queue is enabled. The
// returned close func releases the queue client.
func newEmailSender(cfg *config.Config) (service.EmailSender, func()) {
	if !cfg.Mail.UseQueue {
		return mail.NewSMTPSender(cfg.Mail, cfg.ResetCode.TTL), func() {}
	}

	client := asynq.NewClient(asynqRedisOpt(cfg))
	return mail.NewQueueSender(client, cfg.ResetCode.TTL), func() { _ = client.Close() }
}

func newProviderVerifiers(cfg *config.Config) map[string]service.ProviderVerifier {
	verifiers := make(map[string]service.ProviderVerifier)
	if cfg.OAuth.Kakao.Enabled() {
		verifiers[oauth.ProviderKakao] = oauth.NewKakaoVerifier(cfg.OAuth.Kakao)
	}
	if cfg.OAuth.Google.Enabled() {
		verifiers[oauth.ProviderGoogle] = oauth.NewGoogleVerifier(cfg.OAuth.Google)
	}
	for name := range verifiers {
		logrus.WithField("provider", name).Info("OAuth provider enabled")
	}
	return verifiers
}
