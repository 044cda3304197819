package http

import (
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/facturetn-api/internal/application/dto"
	"github.com/jhoicas/facturetn-api/internal/application/recovery"
	"github.com/jhoicas/facturetn-api/internal/domain"
)

// DigiGoStart abre la sesión de firma remota.
// POST /api/digigo/start
func (h *handlers) DigiGoStart(c *fiber.Ctx) error {
	var in dto.DigiGoStartRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	out, err := h.remote.Start(c.UserContext(), Actor(c), in)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(out)
}

// DigiGoCallback vincula el artefacto de retorno a la sesión.
// GET|POST /api/digigo/callback
func (h *handlers) DigiGoCallback(c *fiber.Ctx) error {
	var in dto.DigiGoCallbackRequest
	if c.Method() == fiber.MethodPost {
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, "INVALID_BODY", "cuerpo inválido")
		}
	} else if err := c.QueryParser(&in); err != nil {
		return badRequest(c, "INVALID_QUERY", "query inválida")
	}
	out, err := h.remote.Callback(c.UserContext(), in)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(out)
}

// DigiGoConfirm canjea, firma e inyecta.
// POST /api/digigo/confirm
func (h *handlers) DigiGoConfirm(c *fiber.Ctx) error {
	var in dto.DigiGoConfirmRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	out, err := h.remote.Confirm(c.UserContext(), in)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(out)
}

// DigiGoContext contexto de una sesión en curso.
// GET /api/digigo/context?state=
func (h *handlers) DigiGoContext(c *fiber.Ctx) error {
	out, err := h.remote.Context(c.UserContext(), c.Query("state"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(out)
}

// DigiGoStatus estado derivado del flujo remoto de la factura.
// GET /api/invoices/:id/digigo/status
func (h *handlers) DigiGoStatus(c *fiber.Ctx) error {
	st, err := h.remote.FlowState(c.UserContext(), Actor(c), c.Params("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "invoice_id": c.Params("id"), "state": st})
}

// DigiGoReturn punto de entrada tras el proveedor. Sin parámetros de retorno no hace nada;
// con state e invoice_id válidos en la query reenvía directamente; si no, la página
// de arranque completa la recuperación desde el almacenamiento del navegador.
// GET / y GET /digigo/return
func (h *handlers) DigiGoReturn(c *fiber.Ctx) error {
	query := queryValues(c)
	rc, ok := recovery.RecoverContext(query)
	if !ok {
		return c.SendStatus(fiber.StatusNoContent)
	}
	if recovery.FromQueryOnly(query) {
		return c.Redirect(recovery.ForwardURL(rc, query), fiber.StatusFound)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	c.Set(fiber.HeaderCacheControl, "no-store")
	return recovery.RenderBootstrap(c.Response().BodyWriter())
}

// DigiGoRedirect manejador de destino: Callback y Confirm, luego vuelve a back_url
// con ?signed=1 o ?sign_error=CODE.
// GET /digigo/redirect
func (h *handlers) DigiGoRedirect(c *fiber.Ctx) error {
	ctx := c.UserContext()
	back := localBack(c.Query("back"), c.Query("invoice_id"))

	if e := strings.TrimSpace(c.Query("error")); e != "" {
		h.log.Warn().Str("error", e).Msg("el proveedor devolvió un error")
		return c.Redirect(withParam(back, "sign_error", "PROVIDER_ERROR"), fiber.StatusFound)
	}

	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		token = strings.TrimSpace(c.Query("code"))
	}
	cb, err := h.remote.Callback(ctx, dto.DigiGoCallbackRequest{Token: token, State: c.Query("state")})
	if err != nil {
		return c.Redirect(withParam(back, "sign_error", codeOrInternal(err)), fiber.StatusFound)
	}
	if cb.BackURL != "" {
		back = cb.BackURL
	}
	if _, err := h.remote.Confirm(ctx, dto.DigiGoConfirmRequest{InvoiceID: cb.InvoiceID, State: cb.State, Token: token}); err != nil {
		return c.Redirect(withParam(back, "sign_error", codeOrInternal(err)), fiber.StatusFound)
	}
	return c.Redirect(withParam(back, "signed", "1"), fiber.StatusFound)
}

func queryValues(c *fiber.Ctx) url.Values {
	v, err := url.ParseQuery(string(c.Request().URI().QueryString()))
	if err != nil {
		return url.Values{}
	}
	return v
}

// localBack solo admite rutas locales.
func localBack(back, invoiceID string) string {
	back = strings.TrimSpace(back)
	if back != "" && strings.HasPrefix(back, "/") && !strings.HasPrefix(back, "//") && !strings.Contains(back, `\`) {
		return back
	}
	if invoiceID != "" && recovery.IsUUID(invoiceID) {
		return "/invoices/" + invoiceID
	}
	return "/"
}

func withParam(path, key, value string) string {
	u, err := url.Parse(path)
	if err != nil {
		return path
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

func codeOrInternal(err error) string {
	if code := domain.CodeOf(err); code != "" {
		return code
	}
	return "INTERNAL"
}
