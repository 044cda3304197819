package http_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apphttp "github.com/jhoicas/facturetn-api/internal/interfaces/http"
	pkgjwt "github.com/jhoicas/facturetn-api/pkg/jwt"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

const (
	testJWTSecret = "test-secret-key-for-unit-tests"
	testUserID    = "00000000-0000-0000-0000-000000000001"
	testCompanyID = "00000000-0000-0000-0000-000000000002"
	otherCompany  = "00000000-0000-0000-0000-000000000003"
	testIssuer    = "facturetn-test"
	testExpMin    = 60
)

// checkerFunc adapta una función a access.Checker.
type checkerFunc func(userID, companyID, action string) (bool, error)

func (f checkerFunc) Can(_ context.Context, userID, companyID, action string) (bool, error) {
	return f(userID, companyID, action)
}

// allowCompany concede submit_ttn solo sobre la empresa indicada.
func allowCompany(companyID string) checkerFunc {
	return func(_, c, action string) (bool, error) {
		return c == companyID && action == "submit_ttn", nil
	}
}

// buildCapabilityApp: AuthMiddleware + RequireCapability + handler dummy.
func buildCapabilityApp(checker checkerFunc) *fiber.App {
	app := fiber.New()
	ok := func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) }
	app.Get("/companies/:companyID/x", apphttp.AuthMiddleware(testJWTSecret),
		apphttp.RequireCapability("submit_ttn", checker), ok)
	app.Get("/own", apphttp.AuthMiddleware(testJWTSecret),
		apphttp.RequireCapability("submit_ttn", checker), ok)
	return app
}

func bearer(t *testing.T, role string) string {
	t.Helper()
	tok, err := pkgjwt.Generate(testJWTSecret, testUserID, testCompanyID, role, testIssuer, testExpMin)
	require.NoError(t, err, "debe generarse un token JWT válido")
	return "Bearer " + tok
}

func get(t *testing.T, app *fiber.App, path, authHeader string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests RequireCapability
// ──────────────────────────────────────────────────────────────────────────────

func TestRequireCapability_EmpresaDeLaRuta(t *testing.T) {
	app := buildCapabilityApp(allowCompany(otherCompany))

	resp := get(t, app, "/companies/"+otherCompany+"/x", bearer(t, "accountant"))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "la empresa de la ruta decide, no la del token")
}

func TestRequireCapability_DenegadoEsFORBIDDENGenerico(t *testing.T) {
	app := buildCapabilityApp(allowCompany(otherCompany))

	resp := get(t, app, "/companies/"+testCompanyID+"/x", bearer(t, "viewer"))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `"code":"FORBIDDEN"`)
}

func TestRequireCapability_SinParametroUsaLaEmpresaDelToken(t *testing.T) {
	app := buildCapabilityApp(allowCompany(testCompanyID))

	resp := get(t, app, "/own", bearer(t, "admin"))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequireCapability_FalloDelChequeo_Retorna503(t *testing.T) {
	app := buildCapabilityApp(func(_, _, _ string) (bool, error) { return false, assert.AnError })

	resp := get(t, app, "/own", bearer(t, "admin"))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests AuthMiddleware
// ──────────────────────────────────────────────────────────────────────────────

func TestAuthMiddleware_ExtraeClaims(t *testing.T) {
	app := fiber.New()
	app.Get("/me", apphttp.AuthMiddleware(testJWTSecret), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"user_id":    apphttp.GetUserID(c),
			"company_id": apphttp.GetCompanyID(c),
			"role":       apphttp.GetRole(c),
		})
	})

	resp := get(t, app, "/me", bearer(t, "admin"))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, testUserID, body["user_id"])
	assert.Equal(t, testCompanyID, body["company_id"])
	assert.Equal(t, "admin", body["role"])
}

func TestAuthMiddleware_Rechazos(t *testing.T) {
	expired, err := pkgjwt.Generate(testJWTSecret, testUserID, testCompanyID, "admin", testIssuer, -1)
	require.NoError(t, err)
	otherSecret, err := pkgjwt.Generate("otro-secret-completamente-distinto", testUserID, testCompanyID, "admin", testIssuer, testExpMin)
	require.NoError(t, err)

	cases := []struct {
		name, header, code string
	}{
		{"sin header", "", "MISSING_TOKEN"},
		{"formato", "Token abc", "INVALID_TOKEN"},
		{"malformado", "Bearer token.invalido.aqui", "INVALID_TOKEN"},
		{"expirado", "Bearer " + expired, "INVALID_TOKEN"},
		{"otro secret", "Bearer " + otherSecret, "INVALID_TOKEN"},
	}
	app := buildCapabilityApp(allowCompany(testCompanyID))
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := get(t, app, "/own", tc.header)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			body, _ := io.ReadAll(resp.Body)
			assert.Contains(t, string(body), tc.code)
		})
	}
}
