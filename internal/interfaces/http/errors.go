package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/facturetn-api/internal/application/dto"
	"github.com/jhoicas/facturetn-api/internal/domain"
)

// statusByCode estado HTTP por código de dominio. Un código ausente es 400.
var statusByCode = map[string]int{
	"UNAUTHORIZED":  fiber.StatusUnauthorized,
	"INVALID_TOKEN": fiber.StatusUnauthorized,
	"TOKEN_EXPIRED": fiber.StatusUnauthorized,

	"FORBIDDEN":      fiber.StatusForbidden,
	"TOKEN_MISMATCH": fiber.StatusForbidden,

	"NOT_FOUND":           fiber.StatusNotFound,
	"INVOICE_NOT_FOUND":   fiber.StatusNotFound,
	"COMPANY_NOT_FOUND":   fiber.StatusNotFound,
	"SIGNATURE_NOT_FOUND": fiber.StatusNotFound,
	"SESSION_NOT_FOUND":   fiber.StatusNotFound,

	"CONFLICT":            fiber.StatusConflict,
	"STATE_MISMATCH":      fiber.StatusConflict,
	"STATE_REQUIRED":      fiber.StatusConflict,
	"MUST_VIEW_INVOICE":   fiber.StatusConflict,
	"NOT_SIGNED":          fiber.StatusConflict,
	"ALREADY_SIGNED":      fiber.StatusConflict,
	"NOT_SCHEDULED":       fiber.StatusConflict,
	"INVOICE_LOCKED":      fiber.StatusConflict,
	"INVOICE_LOCKED_TTN":  fiber.StatusConflict,
	"DOC_NOT_ELIGIBLE":    fiber.StatusConflict,
	"SIGNATURE_REQUIRED":  fiber.StatusConflict,
	"VALIDATION_REQUIRED": fiber.StatusConflict,
	"TOKEN_ALREADY_USED":  fiber.StatusConflict,

	"DOCUMENT_TOO_LARGE": fiber.StatusRequestEntityTooLarge,

	"TTN_UPSTREAM_ERROR":   fiber.StatusBadGateway,
	"DSS_SIGNATURE_FAILED": fiber.StatusBadGateway,
	"DIGIGO_TOKEN_FAILED":  fiber.StatusBadGateway,
	"DIGIGO_SIGN_FAILED":   fiber.StatusBadGateway,
	"TTN_TIMEOUT":          fiber.StatusGatewayTimeout,
	"UPSTREAM_TIMEOUT":     fiber.StatusGatewayTimeout,
}

// HTTPStatus estado HTTP de un error de caso de uso.
func HTTPStatus(err error) int {
	var up *domain.UpstreamError
	if errors.As(err, &up) {
		if s, ok := statusByCode[up.Err.Code]; ok && s >= fiber.StatusBadGateway {
			return s
		}
		return fiber.StatusBadGateway
	}
	code := domain.CodeOf(err)
	if code == "" {
		return fiber.StatusInternalServerError
	}
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return fiber.StatusBadRequest
}

// ErrorBody cuerpo JSON de un error. Los errores internos no exponen su texto.
func ErrorBody(err error) dto.ErrorResponse {
	var de *domain.Error
	if !errors.As(err, &de) {
		return dto.ErrorResponse{Code: "INTERNAL", Message: "error interno"}
	}
	out := dto.ErrorResponse{Code: de.Code, Message: de.Message}

	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		out.Problems = ve.Problems
	}
	var up *domain.UpstreamError
	if errors.As(err, &up) && up.Message != "" {
		out.Message = up.Error()
	}
	return out
}

// writeError responde el error con su estado y cuerpo. Los 5xx no upstream se registran.
func (h *handlers) writeError(c *fiber.Ctx, err error) error {
	status := HTTPStatus(err)
	if status == fiber.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.Path()).Msg("error interno")
	}
	return c.Status(status).JSON(ErrorBody(err))
}

func badRequest(c *fiber.Ctx, code, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: code, Message: message})
}
