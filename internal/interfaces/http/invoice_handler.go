package http

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/facturetn-api/internal/application/dto"
)

const mimeXML = "application/xml; charset=utf-8"

// UnsignedXML documento TEIF sin firma.
// GET /api/invoices/:id/xml
func (h *handlers) UnsignedXML(c *fiber.Ctx) error {
	id := c.Params("id")
	doc, err := h.invoices.UnsignedXML(c.UserContext(), Actor(c), id)
	if err != nil {
		return h.writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, mimeXML)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="invoice-%s.xml"`, id))
	return c.Send(doc.XML)
}

// SignedXML bytes firmados guardados; NOT_SIGNED antes de completar la firma.
// GET /api/invoices/:id/xml-signed
func (h *handlers) SignedXML(c *fiber.Ctx) error {
	id := c.Params("id")
	data, err := h.invoices.SignedXML(c.UserContext(), Actor(c), id)
	if err != nil {
		return h.writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, mimeXML)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="invoice-%s-signed.xml"`, id))
	return c.Send(data)
}

// PDF representación gráfica.
// GET /api/invoices/:id/pdf
func (h *handlers) PDF(c *fiber.Ctx) error {
	data, filename, err := h.pdf.DownloadInvoicePDF(c.UserContext(), Actor(c), c.Params("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`inline; filename="%s"`, filename))
	return c.Send(data)
}

// DeleteInvoice borra una factura no bloqueada.
// DELETE /api/invoices/:id
func (h *handlers) DeleteInvoice(c *fiber.Ctx) error {
	if err := h.invoices.Delete(c.UserContext(), Actor(c), c.Params("id")); err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(dto.OKResponse{OK: true})
}

// Declaration declaración manual fuera de TTN.
// POST /api/invoices/:id/declaration
func (h *handlers) Declaration(c *fiber.Ctx) error {
	var in dto.DeclarationRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	out, err := h.invoices.Declare(c.UserContext(), Actor(c), c.Params("id"), in)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(out)
}

// MarkValidated validación del contable.
// POST /api/invoices/:id/validate
func (h *handlers) MarkValidated(c *fiber.Ctx) error {
	out, err := h.invoices.MarkValidated(c.UserContext(), Actor(c), c.Params("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(out)
}

// ValidateTTN validación de negocio previa al envío.
// GET /api/ttn/validate?invoiceId=
func (h *handlers) ValidateTTN(c *fiber.Ctx) error {
	id := c.Query("invoiceId")
	if id == "" {
		id = c.Query("invoice_id")
	}
	if id == "" {
		return badRequest(c, "VALIDATION", "invoiceId requerido")
	}
	res, err := h.invoices.Validate(c.UserContext(), Actor(c), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(res)
}

// SaveCredentials guardado por fusión de la credencial TTN.
// PUT /api/ttn/credentials
func (h *handlers) SaveCredentials(c *fiber.Ctx) error {
	var in dto.SaveCredentialsRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	out, err := h.invoices.SaveCredentials(c.UserContext(), Actor(c), in)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(out)
}

// GetCredentials credencial TTN de la empresa, sin secretos.
// GET /api/companies/:companyID/ttn/credentials?environment=
func (h *handlers) GetCredentials(c *fiber.Ctx) error {
	out, err := h.invoices.Credentials(c.UserContext(), c.Params("companyID"), c.Query("environment"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(out)
}
