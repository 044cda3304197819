package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/facturetn-api/internal/application/access"
	"github.com/jhoicas/facturetn-api/internal/application/dto"
	"github.com/jhoicas/facturetn-api/internal/domain"
)

// RequireCapability exige la acción sobre la empresa de la ruta (:companyID). Sin parámetro
// se usa la empresa del token. Debe ir DESPUÉS de AuthMiddleware.
//
//   - 401 sin usuario en el contexto.
//   - 403 FORBIDDEN si la capacidad no se concede, sin detallar el motivo.
//   - 503 si la comprobación falla.
func RequireCapability(action string, checker access.Checker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := GetUserID(c)
		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "usuario no encontrado en el token"})
		}
		companyID := c.Params("companyID")
		if companyID == "" {
			companyID = GetCompanyID(c)
		}
		ok, err := checker.Can(c.UserContext(), userID, companyID, action)
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{
				Code:    "CAPABILITY_CHECK_FAILED",
				Message: "no se pudo verificar el permiso, intente más tarde",
			})
		}
		if !ok {
			return c.Status(fiber.StatusForbidden).JSON(ErrorBody(domain.ErrForbidden))
		}
		return c.Next()
	}
}
