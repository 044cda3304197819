package domain

import (
	"errors"
	"fmt"
)

// Error es un error de dominio con un código estable que viaja hasta la API.
// Se compara con errors.Is contra las variables de este archivo.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

// NewError construye un error de dominio.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errores genéricos.
var (
	ErrNotFound     = NewError("NOT_FOUND", "recurso no encontrado")
	ErrInvalidInput = NewError("VALIDATION", "entrada inválida")
	ErrUnauthorized = NewError("UNAUTHORIZED", "no autorizado")
	ErrForbidden    = NewError("FORBIDDEN", "acceso denegado")
	ErrConflict     = NewError("CONFLICT", "conflicto con el estado actual")
)

// Documento TEIF.
var (
	ErrTEIFInvalid            = NewError("TEIF_INVALID", "el documento TEIF no cumple la estructura mínima")
	ErrInvoiceInvalid         = NewError("INVOICE_INVALID", "la factura no es válida para TTN")
	ErrDocumentTooLarge       = NewError("DOCUMENT_TOO_LARGE", "el documento supera el tamaño máximo admitido por TTN")
	ErrSignatureEmpty         = NewError("SIGNATURE_EMPTY", "firma vacía")
	ErrSignatureBlockInvalid  = NewError("SIGNATURE_BLOCK_INVALID", "bloque de firma inválido")
	ErrTEIFStructureInvalid   = NewError("TEIF_STRUCTURE_INVALID", "estructura TEIF inválida para inyectar la firma")
	ErrInvoiceNotFound        = NewError("INVOICE_NOT_FOUND", "factura no encontrada")
	ErrCompanyNotFound        = NewError("COMPANY_NOT_FOUND", "empresa no encontrada")
	ErrInvoiceLocked          = NewError("INVOICE_LOCKED", "la factura está firmada o en curso en TTN")
	ErrInvoiceLockedTTN       = NewError("INVOICE_LOCKED_TTN", "la factura ya fue enviada o programada en TTN")
	ErrDocNotEligible         = NewError("DOC_NOT_ELIGIBLE", "tipo de documento no elegible")
	ErrDeclarationStatusInval = NewError("STATUS_INVALID", "estado de declaración inválido")
)

// Libro de firmas.
var (
	ErrSignatureNotFound = NewError("SIGNATURE_NOT_FOUND", "no hay registro de firma para la factura")
	ErrAlreadySigned     = NewError("ALREADY_SIGNED", "la factura ya está firmada con este proveedor")
	ErrNotSigned         = NewError("NOT_SIGNED", "la factura aún no está firmada")
	ErrStateRequired     = NewError("STATE_REQUIRED", "reabrir una firma pendiente exige un nuevo identificador de correlación")
)

// Tokens de agente local.
var (
	ErrTokenInvalid     = NewError("INVALID_TOKEN", "token inválido")
	ErrTokenMismatch    = NewError("TOKEN_MISMATCH", "el token no corresponde a esta empresa, entorno o factura")
	ErrTokenAlreadyUsed = NewError("TOKEN_ALREADY_USED", "token ya utilizado")
	ErrTokenExpired     = NewError("TOKEN_EXPIRED", "token expirado")
	ErrMustViewInvoice  = NewError("MUST_VIEW_INVOICE", "debe visualizar la factura antes de firmarla")
	ErrSignedXMLEmpty   = NewError("SIGNED_XML_EMPTY", "XML firmado vacío")
	ErrCertMissing      = NewError("CERT_MISSING", "descriptor de certificado incompleto")
)

// Firma remota (DigiGo).
var (
	ErrDigiGoNotConfigured = NewError("DIGIGO_NOT_CONFIGURED", "DigiGo no está configurado para esta empresa")
	ErrMissingToken        = NewError("MISSING_TOKEN", "token de retorno requerido")
	ErrMissingState        = NewError("MISSING_STATE", "state requerido")
	ErrInvalidInvoiceID    = NewError("INVALID_INVOICE_ID", "invoice_id inválido")
	ErrCredentialIDMissing = NewError("CREDENTIAL_ID_MISSING", "credentialId ausente")
	ErrUnsignedXMLMissing  = NewError("UNSIGNED_XML_MISSING", "no hay documento sin firmar")
	ErrUnsignedHashMissing = NewError("UNSIGNED_HASH_MISSING", "no hay hash del documento sin firmar")
	ErrStateMismatch       = NewError("STATE_MISMATCH", "el state no corresponde a la sesión de firma")
	ErrJTIMissing          = NewError("JTI_MISSING", "el artefacto de retorno no contiene jti")
	ErrSessionNotFound     = NewError("SESSION_NOT_FOUND", "no hay sesión de firma pendiente")
	ErrSADMissing          = NewError("SAD_MISSING", "el proveedor no devolvió la autorización de firma")
	ErrHashesMissing       = NewError("HASHES_MISSING", "no hay hashes para firmar")
)

// Envío TTN.
var (
	ErrDevisNotSendable     = NewError("DEVIS_NOT_SENDABLE_TTN", "un devis no se envía a TTN")
	ErrCurrencyNotAllowed   = NewError("CURRENCY_NOT_ALLOWED", "TTN solo acepta facturas en TND")
	ErrTTNConfigMissing     = NewError("TTN_CONFIG_MISSING", "credenciales del webservice TTN incompletas")
	ErrTTNIncomplete        = NewError("TTN_INCOMPLETE", "modo API + webservice exige ws_url, ws_login y ws_password")
	ErrSignatureRequired    = NewError("SIGNATURE_REQUIRED", "la firma es obligatoria antes del envío")
	ErrValidationRequired   = NewError("VALIDATION_REQUIRED", "la factura debe ser validada por el contable")
	ErrNotScheduled         = NewError("NOT_SCHEDULED", "solo se puede cancelar un envío programado")
	ErrTTNReferenceMissing  = NewError("TTN_REFERENCE_MISSING", "no hay referencia TTN para consultar la factura")
	ErrTTNTimeout           = NewError("TTN_TIMEOUT", "el webservice TTN no respondió a tiempo")
	ErrTTNUpstream          = NewError("TTN_UPSTREAM_ERROR", "el webservice TTN devolvió un error")
	ErrDSSSignatureFailed   = NewError("DSS_SIGNATURE_FAILED", "el firmante DSS no devolvió una firma")
	ErrDigiGoTokenFailed    = NewError("DIGIGO_TOKEN_FAILED", "DigiGo rechazó el canje del jti")
	ErrDigiGoSignFailed     = NewError("DIGIGO_SIGN_FAILED", "DigiGo rechazó la firma del hash")
	ErrUpstreamTimeout      = NewError("UPSTREAM_TIMEOUT", "el proveedor externo no respondió a tiempo")
	ErrInvalidEnvironment   = NewError("INVALID_ENVIRONMENT", "entorno inválido")
	ErrScheduleInPast       = NewError("SCHEDULE_IN_PAST", "la fecha de envío programado ya pasó")
	ErrSignatureProviderBad = NewError("SIGNATURE_PROVIDER_INVALID", "proveedor de firma inválido")
)

// CodeOf devuelve el código del primer *Error en la cadena, o "" si no hay ninguno.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ValidationError error de validación con la lista completa de problemas.
// Nunca se aplica parcialmente: si existe, la operación no escribió nada.
type ValidationError struct {
	Err      *Error
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s (%d problemas)", e.Err.Message, len(e.Problems))
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError envuelve base con la lista de problemas.
func NewValidationError(base *Error, problems []string) *ValidationError {
	return &ValidationError{Err: base, Problems: problems}
}

// UpstreamError fallo de un servicio externo (firmante remoto, TTN, DSS) con su estado y mensaje.
type UpstreamError struct {
	Err     *Error
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Err.Message, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Err.Message, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// NewUpstreamError construye el error conservando el estado y mensaje remotos.
func NewUpstreamError(base *Error, status int, message string) *UpstreamError {
	return &UpstreamError{Err: base, Status: status, Message: message}
}
