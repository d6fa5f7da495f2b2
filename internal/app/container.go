package app

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/you/accountsvc/domain"
	"github.com/you/accountsvc/internal/config"
	"github.com/you/accountsvc/internal/infrastructure/audit"
	"github.com/you/accountsvc/internal/infrastructure/auth"
	"github.com/you/accountsvc/internal/infrastructure/cache"
	"github.com/you/accountsvc/internal/infrastructure/database"
	"github.com/you/accountsvc/internal/infrastructure/notifications"
	"github.com/you/accountsvc/internal/infrastructure/repositories"
	"github.com/you/accountsvc/internal/services"
)

// Container holds all dependencies
type Container struct {
	// Config
	Config *config.Config
	Logger *slog.Logger

	// Infrastructure
	DB    *gorm.DB
	Redis *database.RedisClient
	Store *cache.RedisStore

	// Repositories
	UserRepo    domain.UserRepository
	RefreshRepo domain.RefreshTokenRepository

	// Services
	PasswordSvc     domain.PasswordService
	PasswordPolicy  domain.PasswordPolicy
	TokenSvc        domain.TokenService
	Mailer          domain.Mailer
	Audit           domain.AuditLogger
	Dispatcher      *services.DeliveryDispatcher
	RateLimiter     domain.RateLimiter
	VerificationSvc domain.VerificationService
	AuthSvc         domain.AuthService
}

// NewContainer creates and initializes all dependencies
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger}

	if err := c.initDatabase(); err != nil {
		c.Close(ctx)
		return nil, err
	}
	if err := c.initRedis(ctx); err != nil {
		c.Close(ctx)
		return nil, err
	}

	c.initRepositories()
	c.initServices()

	return c, nil
}

func (c *Container) initDatabase() error {
	db, err := database.Open(c.Config.DSN, c.Config.DBLogLevel)
	if err != nil {
		return err
	}
	c.DB = db

	if err := database.Migrate(db); err != nil {
		return err
	}
	return nil
}

func (c *Container) initRedis(ctx context.Context) error {
	c.Redis = database.NewRedis(c.Config.RedisAddr, c.Config.RedisPass, c.Config.RedisDB)
	if err := c.Redis.Ping(ctx); err != nil {
		return fmt.Errorf("failed to reach redis at %s: %w", c.Config.RedisAddr, err)
	}
	c.Store = cache.NewRedisStore(c.Redis.Client)
	return nil
}

func (c *Container) initRepositories() {
	c.UserRepo = repositories.NewUserRepository(c.DB)
	c.RefreshRepo = repositories.NewRefreshTokenRepository(c.Redis.Client, c.Config.RefreshTTL)
}

func (c *Container) initServices() {
	c.PasswordSvc = auth.NewPasswordService(0)
	c.PasswordPolicy = auth.PasswordPolicy{
		MinLength:     c.Config.Password.MinLength,
		RequireUpper:  c.Config.Password.RequireUpper,
		RequireLower:  c.Config.Password.RequireLower,
		RequireDigit:  c.Config.Password.RequireDigit,
		RequireSymbol: c.Config.Password.RequireSymbol,
	}
	c.TokenSvc = auth.NewJWTService(
		c.Config.JWTSecret,
		c.Config.JWTIssuer,
		c.Config.AccessTTL,
		c.Config.RefreshTTL,
	)
	c.Mailer = notifications.NewSMTPMailer(
		c.Config.SMTP.Host,
		c.Config.SMTP.Port,
		c.Config.SMTP.Username,
		c.Config.SMTP.Password,
		c.Config.SMTP.From,
	)
	c.Audit = audit.NewSlogAuditLogger(c.Logger)

	// Delivery runs off the request path
	c.Dispatcher = services.NewDeliveryDispatcher(c.Mailer, c.Store, c.Audit, services.DispatcherConfig{
		Workers:     c.Config.Workers,
		QueueSize:   c.Config.QueueSize,
		SendTimeout: c.Config.SendTimeout,
	})
	c.Dispatcher.Start()

	c.RateLimiter = services.NewRateLimiter(c.Store, c.Config.ResendMax, c.Config.ResendWnd)
	c.VerificationSvc = services.NewVerificationService(
		c.Store,
		c.RateLimiter,
		c.UserRepo,
		c.Dispatcher,
		c.Audit,
		c.Config.CodeTTL,
	)

	// Initialize auth service (depends on all other services)
	c.AuthSvc = services.NewAuthService(
		c.UserRepo,
		c.RefreshRepo,
		c.PasswordSvc,
		c.PasswordPolicy,
		c.TokenSvc,
		c.VerificationSvc,
		c.Audit,
	)
}

// Close drains pending deliveries and closes all connections
func (c *Container) Close(ctx context.Context) {
	if c.Dispatcher != nil {
		if err := c.Dispatcher.Close(ctx); err != nil {
			c.Logger.Warn("delivery queue not drained", "error", err)
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("failed to close redis", "error", err)
		}
	}

	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				c.Logger.Warn("failed to close database", "error", err)
			}
		}
	}
}
