package main

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"ordering-and-delivery/internal/config"
	"ordering-and-delivery/internal/middleware"
	"ordering-and-delivery/internal/models"
	"ordering-and-delivery/internal/modules/assignment"
	"ordering-and-delivery/internal/modules/catalog"
	"ordering-and-delivery/internal/modules/order"
	"ordering-and-delivery/internal/modules/pricing"
	"ordering-and-delivery/pkg/clock"
	"ordering-and-delivery/pkg/notifier"
	"ordering-and-delivery/pkg/otp"
	"ordering-and-delivery/pkg/payment"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to create connection pool: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("failed to reach database: %v", err)
	}

	var backend notifier.ServiceInterface
	if sesBackend, err := notifier.NewSESNotifier(ctx, cfg.AWSRegion, cfg.NotifyFromEmail); err != nil {
		log.Printf("email notifications unavailable, falling back to log output: %v", err)
		backend = notifier.LogNotifier{}
	} else {
		backend = sesBackend
	}
	dispatcher := notifier.NewDispatcher(backend)

	clk := clock.Real{}
	issuer := otp.NewIssuer(otp.Config{
		Length:      cfg.OTPLength,
		TTL:         cfg.OTPExpiry(),
		MaxAttempts: cfg.OTPMaxAttempts,
	})
	engine := pricing.NewEngine(pricing.Config{
		TaxRate:               cfg.TaxRate,
		FreeDeliveryThreshold: cfg.FreeDeliveryThreshold,
	})
	payments := payment.NewStripeService(cfg.StripeAPIKey)

	catalogService := catalog.NewService(catalog.NewRepository(pool))
	orderService := order.NewService(
		order.NewRepository(pool),
		catalogService,
		engine,
		issuer,
		payments,
		dispatcher,
		clk,
		cfg.CancellationWindow(),
	)
	assignmentService := assignment.NewService(assignment.NewRepository(pool), dispatcher, clk)

	e := echo.New()
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{cfg.ClientOrigin},
		AllowCredentials: true,
	}))

	verifyJWT, extractClaims := middleware.JWT(cfg.JWTSecret)

	api := e.Group("/api")
	catalog.NewHandler(catalogService).RegisterRoutes(api)

	authed := api.Group("", verifyJWT, extractClaims)
	admin := authed.Group("/admin", middleware.RequireRole(models.RoleAdmin))

	order.NewHandler(orderService).RegisterRoutes(authed, admin)
	assignment.NewHandler(assignmentService).RegisterRoutes(admin)

	log.Fatal(e.Start(":" + cfg.ServerPort))
}
