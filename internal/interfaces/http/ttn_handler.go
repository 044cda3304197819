package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/facturetn-api/internal/application/dto"
)

// Submit envío inmediato a TTN.
// POST /api/invoices/:id/ttn
func (h *handlers) Submit(c *fiber.Ctx) error {
	var in dto.SubmitRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, "INVALID_BODY", "cuerpo inválido")
		}
	}
	out, err := h.submissions.Submit(c.UserContext(), Actor(c), c.Params("id"), in)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(out)
}

// Schedule programa el envío.
// POST /api/invoices/:id/ttn/schedule
func (h *handlers) Schedule(c *fiber.Ctx) error {
	var in dto.ScheduleRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, "INVALID_BODY", "cuerpo inválido")
		}
	}
	out, err := h.submissions.Schedule(c.UserContext(), Actor(c), c.Params("id"), in)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(out)
}

// Cancel cancela un envío programado.
// POST /api/invoices/:id/ttn/cancel
func (h *handlers) Cancel(c *fiber.Ctx) error {
	out, err := h.submissions.Cancel(c.UserContext(), Actor(c), c.Params("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(out)
}

// TTNStatus consulta el estado en TTN.
// GET /api/invoices/:id/ttn/status
func (h *handlers) TTNStatus(c *fiber.Ctx) error {
	out, err := h.submissions.Status(c.UserContext(), Actor(c), c.Params("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(out)
}
