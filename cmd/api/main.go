package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jhoicas/facturetn-api/internal/application/access"
	"github.com/jhoicas/facturetn-api/internal/application/billing"
	"github.com/jhoicas/facturetn-api/internal/application/signing"
	"github.com/jhoicas/facturetn-api/internal/application/submission"
	"github.com/jhoicas/facturetn-api/internal/infrastructure/cache"
	"github.com/jhoicas/facturetn-api/internal/infrastructure/digigo"
	"github.com/jhoicas/facturetn-api/internal/infrastructure/dss"
	"github.com/jhoicas/facturetn-api/internal/infrastructure/events"
	infrapdf "github.com/jhoicas/facturetn-api/internal/infrastructure/pdf"
	"github.com/jhoicas/facturetn-api/internal/infrastructure/postgres"
	"github.com/jhoicas/facturetn-api/internal/infrastructure/teif"
	"github.com/jhoicas/facturetn-api/internal/infrastructure/ttn"
	httpRouter "github.com/jhoicas/facturetn-api/internal/interfaces/http"
	"github.com/jhoicas/facturetn-api/pkg/config"
	"github.com/jhoicas/facturetn-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("ttn_environment", cfg.TTN.Environment).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	companyRepo := postgres.NewCompanyRepository(pool)
	invoiceRepo := postgres.NewInvoiceRepository(pool)
	signatureRepo := postgres.NewSignatureRepository(pool)
	tokenRepo := postgres.NewTokenRepository(pool)
	sessionRepo := postgres.NewRemoteSessionRepository(pool)
	credentialRepo := postgres.NewCredentialRepository(pool)
	membershipRepo := postgres.NewMembershipRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	capabilities := access.NewCapabilityService(membershipRepo, log.Component("access"))

	// Caché de sesiones DigiGo: opcional, la base de datos sigue siendo la fuente de verdad
	var sessionCache signing.SessionCache
	if cfg.Redis.URL != "" {
		rdb, err := cache.Open(ctx, cfg.Redis.URL)
		if err != nil {
			log.Warn().Err(err).Msg("Redis no disponible: sesiones DigiGo solo en PostgreSQL")
		} else {
			defer rdb.Close()
			sessionCache = cache.NewRedisSessionCache(rdb)
		}
	}

	publisher, err := events.New(cfg.Kafka, log.Component("events"))
	if err != nil {
		log.Fatal().Err(err).Msg("publicador de eventos")
	}
	defer publisher.Close()

	// Documento TEIF
	docs := billing.NewDocumentService(invoiceRepo, companyRepo, teif.NewBuilder(), cfg.TTN.MaxXMLBytes, log.Component("teif"))
	invoiceSvc := billing.NewInvoiceService(
		docs, invoiceRepo, companyRepo, signatureRepo, credentialRepo,
		txRunner, capabilities, cfg.TTN.Environment, log.Component("invoices"),
	)
	pdfUC := billing.NewPDFUseCase(docs, capabilities, infrapdf.NewMarotoPDFGenerator())

	// Firma: DigiGo (remota) y agente local
	signingCfg := signing.ConfigFrom(cfg)
	remoteDeps := signing.RemoteDeps{
		Docs:        docs,
		Invoices:    invoiceRepo,
		Signatures:  signatureRepo,
		Sessions:    sessionRepo,
		Credentials: credentialRepo,
		Tx:          txRunner,
		Cache:       sessionCache,
		Events:      publisher,
		Access:      capabilities,
	}
	if client := digigo.NewClient(cfg.DigiGo); client != nil {
		remoteDeps.Signer = client
	} else {
		log.Warn().Msg("DigiGo no configurado: la firma remota responderá DIGIGO_NOT_CONFIGURED")
	}
	remote := signing.NewRemoteOrchestrator(remoteDeps, signingCfg, log.Component("digigo"))
	agent := signing.NewAgentOrchestrator(signing.AgentDeps{
		Docs:        docs,
		Invoices:    invoiceRepo,
		Tokens:      tokenRepo,
		Credentials: credentialRepo,
		Tx:          txRunner,
		Events:      publisher,
		Access:      capabilities,
	}, signingCfg, log.Component("agent"))
	ledger := signing.NewLedger(txRunner, signatureRepo, log.Component("ledger"))

	// Envío TTN (saveEfact / consultEfact) con DSS opcional
	submissions := submission.NewService(submission.Deps{
		Docs:        docs,
		Invoices:    invoiceRepo,
		Companies:   companyRepo,
		Signatures:  signatureRepo,
		Credentials: credentialRepo,
		Tx:          txRunner,
		Ledger:      ledger,
		TTN:         ttn.NewClient(cfg.TTN.WSURL, cfg.TTN.Timeout()),
		DSS:         dss.NewClient(0),
		Events:      publisher,
		Access:      capabilities,
	}, submission.ConfigFrom(cfg), log.Component("ttn"))

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: cfg.TTN.Timeout() + 15*time.Second,
		IdleTimeout:  time.Second * 60,
		BodyLimit:    4 * 1024 * 1024,
	})
	app.Use(recover.New())
	app.Use(httpRouter.AccessLog(log.Component("http")))

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "FactureTN API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Remote:      remote,
		Agent:       agent,
		Invoices:    invoiceSvc,
		PDF:         pdfUC,
		Submissions: submissions,
		Providers:   signing.NewProviders(remote, agent),
		Access:      capabilities,
		JWTSecret:   cfg.JWT.Secret,
		Log:         log.Component("http"),
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
