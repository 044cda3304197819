package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/facturetn-api/internal/application/dto"
	"github.com/jhoicas/facturetn-api/internal/domain/entity"
)

// PairToken emite el token de emparejamiento del agente local.
// POST /api/signature/pair-token
func (h *handlers) PairToken(c *fiber.Ctx) error {
	var in dto.PairTokenRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	if in.CompanyID == "" {
		in.CompanyID = GetCompanyID(c)
	}
	out, err := h.agent.IssuePairingToken(c.UserContext(), Actor(c), in)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(out)
}

// AgentPair canje del token de emparejamiento por el agente.
// POST /api/signature/agent/pair
func (h *handlers) AgentPair(c *fiber.Ctx) error {
	var in dto.AgentPairRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	out, err := h.agent.RedeemPairing(c.UserContext(), in)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(out)
}

// SignToken emite el token de firma de una factura ya visualizada.
// POST /api/signature/sign-token
func (h *handlers) SignToken(c *fiber.Ctx) error {
	var in dto.SignTokenRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	out, err := h.agent.IssueSignToken(c.UserContext(), Actor(c), in)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(out)
}

// SignPayload documento a firmar por el agente.
// GET /api/signature/agent/sign-payload?token=
func (h *handlers) SignPayload(c *fiber.Ctx) error {
	out, err := h.agent.SignPayload(c.UserContext(), c.Query("token"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(out)
}

// SignedXML entrega del documento firmado por el agente.
// POST /api/signature/agent/signed-xml
func (h *handlers) AgentSignedXML(c *fiber.Ctx) error {
	var in dto.AgentSignedXMLRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	out, err := h.agent.RedeemSigning(c.UserContext(), in)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(out)
}

// Viewed registra que el usuario visualizó la factura.
// POST /api/invoices/:id/viewed
func (h *handlers) Viewed(c *fiber.Ctx) error {
	if err := h.agent.RecordView(c.UserContext(), Actor(c), c.Params("id")); err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(dto.OKResponse{OK: true})
}

// Providers proveedores de firma y su modo en esta instalación.
// GET /api/signature/providers
func (h *handlers) Providers(c *fiber.Ctx) error {
	out := make([]dto.ProviderInfo, 0, len(entity.SignatureProviders))
	for _, p := range entity.SignatureProviders {
		info := dto.ProviderInfo{Provider: p.String()}
		if h.providers != nil {
			info.Mode = h.providers.Mode(p)
		}
		info.Available = info.Mode != ""
		out = append(out, info)
	}
	return c.JSON(fiber.Map{"ok": true, "providers": out})
}
