package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/facturetn-api/internal/application/access"
	"github.com/jhoicas/facturetn-api/internal/domain/entity"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Remote      RemoteSigning
	Agent       AgentSigning
	Invoices    Invoices
	PDF         InvoicePDF
	Submissions Submissions
	Providers   ProviderCatalog
	Access      access.Checker
	JWTSecret   string
	Log         zerolog.Logger
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	h := &handlers{
		remote:      deps.Remote,
		agent:       deps.Agent,
		invoices:    deps.Invoices,
		pdf:         deps.PDF,
		submissions: deps.Submissions,
		providers:   deps.Providers,
		log:         deps.Log,
	}
	auth := AuthMiddleware(deps.JWTSecret)

	// Retorno del firmante remoto (público; la recuperación se hace en el navegador)
	app.Get("/", h.DigiGoReturn)
	app.Get("/digigo/return", h.DigiGoReturn)
	app.Get("/digigo/redirect", h.DigiGoRedirect)

	api := app.Group("/api")

	// DigiGo
	digigo := api.Group("/digigo")
	digigo.Post("/start", auth, h.DigiGoStart)
	digigo.Get("/callback", h.DigiGoCallback)
	digigo.Post("/callback", h.DigiGoCallback)
	digigo.Post("/confirm", auth, h.DigiGoConfirm)
	digigo.Get("/context", h.DigiGoContext)

	// Agente local: las rutas del agente se autentican con su token de un solo uso
	sig := api.Group("/signature")
	sig.Get("/providers", h.Providers)
	sig.Post("/pair-token", auth, h.PairToken)
	sig.Post("/sign-token", auth, h.SignToken)
	sig.Post("/agent/pair", h.AgentPair)
	sig.Get("/agent/sign-payload", h.SignPayload)
	sig.Post("/agent/signed-xml", h.AgentSignedXML)

	// Facturas (protegido)
	invoices := api.Group("/invoices", auth)
	invoices.Post("/:id/viewed", h.Viewed)
	invoices.Get("/:id/xml", h.UnsignedXML)
	invoices.Get("/:id/xml-signed", h.SignedXML)
	invoices.Get("/:id/pdf", h.PDF)
	invoices.Delete("/:id", h.DeleteInvoice)
	invoices.Post("/:id/declaration", h.Declaration)
	invoices.Post("/:id/validate", h.MarkValidated)
	invoices.Get("/:id/digigo/status", h.DigiGoStatus)
	invoices.Post("/:id/ttn", h.Submit)
	invoices.Post("/:id/ttn/schedule", h.Schedule)
	invoices.Post("/:id/ttn/cancel", h.Cancel)
	invoices.Get("/:id/ttn/status", h.TTNStatus)

	// TTN (protegido)
	ttn := api.Group("/ttn", auth)
	ttn.Get("/validate", h.ValidateTTN)
	ttn.Put("/credentials", h.SaveCredentials)

	companies := api.Group("/companies", auth)
	companies.Get("/:companyID/ttn/credentials",
		RequireCapability(entity.ActionSubmitTTN, deps.Access), h.GetCredentials)
}
