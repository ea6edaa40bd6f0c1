// Command vpnhookd is the reference billing webhook daemon: it receives
// payment provider events, keeps the entitlement ledger, drives the VPN host
// tooling, and sweeps expired entitlements on a schedule.
package main

import (
	"context"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/vpnkit/adapters/gin/handlers"
	"github.com/open-rails/vpnkit/adapters/ginutil"
	"github.com/open-rails/vpnkit/core"
	"github.com/open-rails/vpnkit/entitlements"
	"github.com/open-rails/vpnkit/ingress"
	"github.com/open-rails/vpnkit/jobs"
	execprovision "github.com/open-rails/vpnkit/provision/exec"
	memorylimiter "github.com/open-rails/vpnkit/ratelimit/memory"
	redislimiter "github.com/open-rails/vpnkit/ratelimit/redis"
	filestore "github.com/open-rails/vpnkit/storage/file"
	pgstore "github.com/open-rails/vpnkit/storage/postgres"
	redisstore "github.com/open-rails/vpnkit/storage/redis"
)

func main() {
	_ = godotenv.Load()

	log := logrus.New()
	if lvl, err := logrus.ParseLevel(envOr("LOG_LEVEL", "info")); err == nil {
		log.SetLevel(lvl)
	}

	secret := os.Getenv("VPNKIT_WEBHOOK_SECRET")
	if secret == "" {
		log.Fatal("VPNKIT_WEBHOOK_SECRET is required")
	}

	ctx := context.Background()

	var rdb *redis.Client
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")})
	}

	store, err := buildStore(ctx, rdb)
	if err != nil {
		log.WithError(err).Fatal("store init failed")
	}

	prov := &execprovision.Provisioner{
		InstallerPath: envOr("VPNKIT_INSTALLER", "/root/VPN/scripts/installer.sh"),
		RevokePath:    envOr("VPNKIT_REVOKE_SCRIPT", "/root/VPN/scripts/revoke.sh"),
		Logger:        log,
	}
	notify := &execprovision.MuttNotifier{
		ConfigDir: envOr("VPNKIT_CONFIG_DIR", "/root/clients-configs"),
	}

	svc, err := core.New(core.Config{
		Store:       store,
		Provisioner: prov,
		Notifier:    notify,
		Verifier:    ingress.NewStripeVerifier(secret),
		Logger:      log,
	})
	if err != nil {
		log.WithError(err).Fatal("service init failed")
	}

	var rl ginutil.RateLimiter
	if rdb != nil {
		rl = redislimiter.New(rdb, nil)
	} else {
		rl = memorylimiter.New(nil)
	}

	c := cron.New()
	if _, err := jobs.ScheduleSweeps(c, svc, os.Getenv("VPNKIT_SWEEP_CRON"), log); err != nil {
		log.WithError(err).Fatal("sweep schedule invalid")
	}
	c.Start()
	defer c.Stop()

	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/webhook", handlers.HandleBillingWebhookPOST(svc, rl))
	r.POST("/revoke-expired", handlers.HandleRevokeExpiredPOST(svc, rl))

	listen := envOr("VPNKIT_LISTEN", ":4242")
	log.WithField("addr", listen).Info("vpnhookd listening")
	if err := r.Run(listen); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

// buildStore picks the ledger backend: Postgres when DATABASE_URL is set,
// else Redis when available, else the JSON file the original tooling used.
func buildStore(ctx context.Context, rdb *redis.Client) (entitlements.Store, error) {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return pgstore.New(pool, os.Getenv("VPNKIT_PG_SCHEMA")), nil
	}
	if rdb != nil {
		return redisstore.New(rdb, os.Getenv("VPNKIT_REDIS_KEY")), nil
	}
	return filestore.New(envOr("VPNKIT_SUBSCRIPTIONS_FILE", "/root/VPN/scripts/subscriptions.json")), nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
