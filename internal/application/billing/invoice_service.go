package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/facturetn-api/internal/application/access"
	"github.com/jhoicas/facturetn-api/internal/application/dto"
	"github.com/jhoicas/facturetn-api/internal/domain"
	"github.com/jhoicas/facturetn-api/internal/domain/entity"
	"github.com/jhoicas/facturetn-api/internal/domain/repository"
	teifdomain "github.com/jhoicas/facturetn-api/internal/domain/teif"
	"github.com/jhoicas/facturetn-api/internal/infrastructure/teif"
)

// InvoiceService operaciones de factura fuera del flujo de firma y envío:
// descargas, borrado, declaración manual, validación del contable y credenciales TTN.
type InvoiceService struct {
	docs        *DocumentService
	invoices    repository.InvoiceRepository
	companies   repository.CompanyRepository
	signatures  repository.SignatureRepository
	credentials repository.CredentialRepository
	tx          repository.TxRunner
	access      access.Checker
	environment string
	log         zerolog.Logger
}

// NewInvoiceService construye el servicio. environment es el entorno TTN por defecto.
func NewInvoiceService(
	docs *DocumentService,
	invoices repository.InvoiceRepository,
	companies repository.CompanyRepository,
	signatures repository.SignatureRepository,
	credentials repository.CredentialRepository,
	tx repository.TxRunner,
	checker access.Checker,
	environment string,
	log zerolog.Logger,
) *InvoiceService {
	if environment == "" {
		environment = entity.EnvironmentProduction
	}
	return &InvoiceService{
		docs:        docs,
		invoices:    invoices,
		companies:   companies,
		signatures:  signatures,
		credentials: credentials,
		tx:          tx,
		access:      checker,
		environment: environment,
		log:         log,
	}
}

// UnsignedXML documento TEIF canónico sin firma, validado y dentro del tamaño máximo.
func (s *InvoiceService) UnsignedXML(ctx context.Context, actor access.Actor, invoiceID string) (*UnsignedDocument, error) {
	inv, items, company, err := s.docs.Load(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := access.Require(ctx, s.access, actor, inv.CompanyID, entity.ActionSubmitTTN); err != nil {
		return nil, err
	}
	return s.docs.Build(inv, items, company, teif.PurposeTTN)
}

// SignedXML devuelve exactamente los bytes firmados guardados en el libro.
func (s *InvoiceService) SignedXML(ctx context.Context, actor access.Actor, invoiceID string) ([]byte, error) {
	inv, err := s.invoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := access.Require(ctx, s.access, actor, inv.CompanyID, entity.ActionSubmitTTN); err != nil {
		return nil, err
	}
	entry, err := s.signatures.Latest(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("xml firmado: %w", err)
	}
	if entry == nil || !entry.IsSigned() || entry.SignedXML == "" {
		return nil, domain.ErrNotSigned
	}
	return []byte(entry.SignedXML), nil
}

// Validate validación de negocio previa al envío (no modifica nada).
func (s *InvoiceService) Validate(ctx context.Context, actor access.Actor, invoiceID string) (teifdomain.Result, error) {
	inv, items, company, err := s.docs.Load(ctx, invoiceID)
	if err != nil {
		return teifdomain.Result{}, err
	}
	if err := s.requireAny(ctx, actor, inv.CompanyID, entity.ActionSubmitTTN, entity.ActionCreateInvoices); err != nil {
		return teifdomain.Result{}, err
	}
	return teifdomain.ValidateInvoice(inv, items, company), nil
}

// Delete borra la factura y sus filas dependientes si no está bloqueada.
func (s *InvoiceService) Delete(ctx context.Context, actor access.Actor, invoiceID string) error {
	err := s.tx.RunInvoice(ctx, invoiceID, func(inv *entity.Invoice, r repository.Repositories) error {
		if err := access.Require(ctx, s.access, actor, inv.CompanyID, entity.ActionCreateInvoices); err != nil {
			return err
		}
		if inv.IsLocked() {
			return domain.ErrInvoiceLocked
		}
		return r.Invoices.Delete(ctx, inv.ID)
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("invoice_id", invoiceID).Str("user_id", actor.UserID).Msg("factura eliminada")
	return nil
}

// Declare registra (manual) o anula (none) la declaración fuera de TTN.
func (s *InvoiceService) Declare(ctx context.Context, actor access.Actor, invoiceID string, req dto.DeclarationRequest) (*dto.DeclarationResponse, error) {
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if status != entity.DeclarationNone && status != entity.DeclarationManual {
		return nil, domain.ErrDeclarationStatusInval
	}

	var out *dto.DeclarationResponse
	err := s.tx.RunInvoice(ctx, invoiceID, func(inv *entity.Invoice, r repository.Repositories) error {
		// ── 1. Elegibilidad ──────────────────────────────────────────────────
		if inv.IsQuote() {
			return domain.ErrDocNotEligible
		}
		ttn := inv.TTNStatus
		if ttn == "" || ttn == entity.TTNStatusDraft {
			ttn = entity.TTNStatusNotSent
		}
		if ttn != entity.TTNStatusNotSent {
			return domain.ErrInvoiceLockedTTN
		}
		if err := s.requireAny(ctx, actor, inv.CompanyID, entity.ActionValidateInvoices, entity.ActionCreateInvoices); err != nil {
			return err
		}

		// ── 2. Requisitos previos de una declaración manual ──────────────────
		if status == entity.DeclarationManual {
			if err := s.checkDeclarable(ctx, inv, r); err != nil {
				return err
			}
		}

		// ── 3. Persistir ──────────────────────────────────────────────────────
		inv.DeclarationStatus = status
		if status == entity.DeclarationNone {
			inv.DeclarationRef, inv.DeclarationNote, inv.DeclaredAt = "", "", nil
		} else {
			now := time.Now().UTC()
			inv.DeclarationRef = strings.TrimSpace(req.Ref)
			inv.DeclarationNote = strings.TrimSpace(req.Note)
			inv.DeclaredAt = &now
		}
		if err := r.Invoices.UpdateDeclaration(ctx, inv); err != nil {
			return err
		}
		out = &dto.DeclarationResponse{OK: true, InvoiceID: inv.ID, DeclarationStatus: status, DeclaredAt: inv.DeclaredAt}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *InvoiceService) checkDeclarable(ctx context.Context, inv *entity.Invoice, r repository.Repositories) error {
	company, err := s.companies.GetByID(ctx, inv.CompanyID)
	if err != nil {
		return fmt.Errorf("declaración: obtener empresa: %w", err)
	}
	if company != nil && company.ValidationRequired && inv.Status != entity.InvoiceStatusValidated {
		return domain.ErrValidationRequired
	}
	cred, err := r.Credentials.Get(ctx, inv.CompanyID, s.environment)
	if err != nil {
		return fmt.Errorf("declaración: obtener credenciales: %w", err)
	}
	if cred == nil || !cred.RequireSignature {
		return nil
	}
	entry, err := r.Signatures.Latest(ctx, inv.ID)
	if err != nil {
		return fmt.Errorf("declaración: leer firma: %w", err)
	}
	if entry == nil || !entry.IsSigned() || entry.SignedXML == "" {
		return domain.ErrSignatureRequired
	}
	return nil
}

// MarkValidated validación del contable. Ya validada: OK con Already.
func (s *InvoiceService) MarkValidated(ctx context.Context, actor access.Actor, invoiceID string) (dto.OKResponse, error) {
	var out dto.OKResponse
	err := s.tx.RunInvoice(ctx, invoiceID, func(inv *entity.Invoice, r repository.Repositories) error {
		if err := access.Require(ctx, s.access, actor, inv.CompanyID, entity.ActionValidateInvoices); err != nil {
			return err
		}
		if inv.IsLocked() {
			return domain.ErrInvoiceLocked
		}
		if inv.Status == entity.InvoiceStatusValidated {
			out = dto.OKResponse{OK: true, Already: true}
			return nil
		}
		if err := r.Invoices.MarkValidated(ctx, inv.ID, time.Now().UTC()); err != nil {
			return err
		}
		out = dto.OKResponse{OK: true}
		return nil
	})
	if err != nil {
		return dto.OKResponse{}, err
	}
	return out, nil
}

// SaveCredentials guarda la credencial TTN por fusión: los campos ausentes conservan su valor.
func (s *InvoiceService) SaveCredentials(ctx context.Context, actor access.Actor, req dto.SaveCredentialsRequest) (*dto.CredentialResponse, error) {
	companyID := strings.TrimSpace(req.CompanyID)
	if companyID == "" {
		companyID = actor.CompanyID
	}
	env := strings.TrimSpace(req.Environment)
	if env == "" {
		env = s.environment
	}
	if !entity.IsValidEnvironment(env) {
		return nil, domain.ErrInvalidEnvironment
	}
	if err := access.Require(ctx, s.access, actor, companyID, entity.ActionSubmitTTN); err != nil {
		return nil, err
	}

	// ── 1. Partir de lo guardado ─────────────────────────────────────────────
	cred, err := s.credentials.Get(ctx, companyID, env)
	if err != nil {
		return nil, fmt.Errorf("credenciales: obtener: %w", err)
	}
	if cred == nil {
		cred = &entity.Credential{
			CompanyID:         companyID,
			Environment:       env,
			SignatureProvider: "none",
			SignatureStatus:   entity.CredentialSignatureUnconfigured,
			SendMode:          entity.SendModeManual,
		}
	}
	prevProvider := cred.SignatureProvider

	// ── 2. Fusionar ──────────────────────────────────────────────────────────
	if req.SignatureProvider != nil {
		p := strings.TrimSpace(*req.SignatureProvider)
		if p == "" {
			p = "none"
		}
		if !isCredentialProvider(p) {
			return nil, domain.ErrSignatureProviderBad
		}
		cred.SignatureProvider = p
	}
	setBool(&cred.RequireSignature, req.RequireSignature)
	setString(&cred.SendMode, req.SendMode)
	setString(&cred.WSURL, req.WSURL)
	setString(&cred.WSLogin, req.WSLogin)
	setString(&cred.WSPassword, req.WSPassword)
	setString(&cred.WSMatricule, req.WSMatricule)
	if req.DigiGoCredentialID != nil {
		cred.SignatureConfig.DigiGo = &entity.DigiGoConfig{CredentialID: strings.TrimSpace(*req.DigiGoCredentialID)}
	}
	if req.DSSURL != nil || req.DSSToken != nil || req.DSSProfile != nil {
		if cred.SignatureConfig.DSS == nil {
			cred.SignatureConfig.DSS = &entity.DSSConfig{}
		}
		setString(&cred.SignatureConfig.DSS.URL, req.DSSURL)
		setString(&cred.SignatureConfig.DSS.Token, req.DSSToken)
		setString(&cred.SignatureConfig.DSS.Profile, req.DSSProfile)
	}
	if cred.SendMode != entity.SendModeAPI {
		cred.SendMode = entity.SendModeManual
	}

	// ── 3. Reglas ────────────────────────────────────────────────────────────
	if cred.SendMode == entity.SendModeAPI && (cred.WSURL == "" || cred.WSLogin == "" || cred.WSPassword == "") {
		return nil, domain.ErrTTNIncomplete
	}
	if cred.RequireSignature && (cred.SignatureProvider == "" || cred.SignatureProvider == "none") {
		return nil, domain.ErrSignatureRequired
	}
	if cred.WSMatricule == "" {
		company, err := s.companies.GetByID(ctx, companyID)
		if err != nil {
			return nil, fmt.Errorf("credenciales: obtener empresa: %w", err)
		}
		if company != nil {
			cred.WSMatricule = company.TaxID
		}
	}
	if cred.SignatureProvider != prevProvider {
		cred.SignatureStatus = entity.CredentialSignatureUnconfigured
	}
	switch cred.SignatureProvider {
	case string(entity.ProviderDigiGo):
		if cred.DigiGoCredentialID() != "" {
			cred.SignatureStatus = entity.CredentialSignaturePaired
		}
	case string(entity.ProviderDSS):
		cred.SignatureStatus = entity.CredentialSignaturePaired
	}

	if err := s.credentials.Upsert(ctx, cred); err != nil {
		return nil, fmt.Errorf("credenciales: guardar: %w", err)
	}
	s.log.Info().Str("company_id", companyID).Str("environment", env).
		Str("signature_provider", cred.SignatureProvider).Str("send_mode", cred.SendMode).
		Msg("credenciales TTN guardadas")
	return CredentialResponse(cred), nil
}

// Credentials credencial de la empresa en el entorno indicado. La autorización la
// resuelve el middleware de capacidades sobre :companyID.
func (s *InvoiceService) Credentials(ctx context.Context, companyID, env string) (*dto.CredentialResponse, error) {
	if env == "" {
		env = s.environment
	}
	if !entity.IsValidEnvironment(env) {
		return nil, domain.ErrInvalidEnvironment
	}
	cred, err := s.credentials.Get(ctx, companyID, env)
	if err != nil {
		return nil, fmt.Errorf("credenciales: leer: %w", err)
	}
	if cred == nil {
		return nil, domain.ErrNotFound
	}
	return CredentialResponse(cred), nil
}

// CredentialResponse vista pública de la credencial, sin secretos.
func CredentialResponse(c *entity.Credential) *dto.CredentialResponse {
	out := &dto.CredentialResponse{
		CompanyID:          c.CompanyID,
		Environment:        c.Environment,
		SignatureProvider:  c.SignatureProvider,
		SignatureStatus:    c.SignatureStatus,
		RequireSignature:   c.RequireSignature,
		SendMode:           c.SendMode,
		WSURL:              c.WSURL,
		WSLogin:            c.WSLogin,
		HasPassword:        c.WSPassword != "",
		WSMatricule:        c.WSMatricule,
		DigiGoCredentialID: c.DigiGoCredentialID(),
	}
	if c.SignatureConfig.DSS != nil {
		out.DSSURL = c.SignatureConfig.DSS.URL
	}
	return out
}

func (s *InvoiceService) invoice(ctx context.Context, invoiceID string) (*entity.Invoice, error) {
	inv, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("obtener factura: %w", err)
	}
	if inv == nil {
		return nil, domain.ErrInvoiceNotFound
	}
	return inv, nil
}

// requireAny basta con una de las acciones.
func (s *InvoiceService) requireAny(ctx context.Context, actor access.Actor, companyID string, actions ...string) error {
	for _, a := range actions {
		ok, err := s.access.Can(ctx, actor.UserID, companyID, a)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return domain.ErrForbidden
}

func isCredentialProvider(p string) bool {
	for _, v := range entity.CredentialProviders {
		if v == p {
			return true
		}
	}
	return false
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
