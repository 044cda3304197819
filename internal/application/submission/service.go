package submission

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jhoicas/facturetn-api/internal/application/access"
	"github.com/jhoicas/facturetn-api/internal/application/dto"
	"github.com/jhoicas/facturetn-api/internal/application/signing"
	"github.com/jhoicas/facturetn-api/internal/domain"
	"github.com/jhoicas/facturetn-api/internal/domain/entity"
	"github.com/jhoicas/facturetn-api/internal/domain/repository"
	"github.com/jhoicas/facturetn-api/internal/infrastructure/dss"
	"github.com/jhoicas/facturetn-api/internal/infrastructure/events"
	"github.com/jhoicas/facturetn-api/internal/infrastructure/teif"
	"github.com/jhoicas/facturetn-api/internal/infrastructure/ttn"
)

const maxLastError = 4000

// Deps dependencias del servicio de envío. DSS es opcional.
type Deps struct {
	Docs        Documents
	Invoices    repository.InvoiceRepository
	Companies   repository.CompanyRepository
	Signatures  repository.SignatureRepository
	Credentials repository.CredentialRepository
	Tx          repository.TxRunner
	Ledger      *signing.Ledger
	TTN         AuthorityClient
	DSS         ServerSigner
	Events      events.Publisher
	Access      access.Checker
}

// Service envío, programación, cancelación y consulta frente a TTN.
type Service struct {
	d   Deps
	cfg Config
	log zerolog.Logger
}

// NewService construye el servicio.
func NewService(d Deps, cfg Config, log zerolog.Logger) *Service {
	if d.Events == nil {
		d.Events = events.NoopPublisher{}
	}
	return &Service{d: d, cfg: cfg.withDefaults(), log: log}
}

// Submit envía la factura a TTN con saveEfact. El estado submitted se fija antes de la llamada,
// en la transacción que bloquea la fila; un fallo remoto deja la factura en error.
func (s *Service) Submit(ctx context.Context, actor access.Actor, invoiceID string, req dto.SubmitRequest) (*dto.SubmitResponse, error) {
	env, err := s.cfg.environment(req.Environment)
	if err != nil {
		return nil, err
	}

	// ── 1. Factura, permisos y reglas de envío ───────────────────────────────
	inv, err := s.invoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := access.Require(ctx, s.d.Access, actor, inv.CompanyID, entity.ActionSubmitTTN); err != nil {
		return nil, err
	}
	if inv.IsQuote() {
		return nil, domain.ErrDevisNotSendable
	}
	if strings.ToUpper(inv.CurrencyOrDefault()) != "TND" {
		return nil, domain.ErrCurrencyNotAllowed
	}
	cred, err := s.d.Credentials.Get(ctx, inv.CompanyID, env)
	if err != nil {
		return nil, fmt.Errorf("envío ttn: credenciales: %w", err)
	}
	if !cred.HasWebservice() {
		return nil, domain.ErrTTNConfigMissing
	}

	// ── 2. Documento: firmado del libro, firmado por DSS o sin firma ─────────
	doc, err := s.d.Docs.BuildUnsigned(ctx, inv.ID, teif.PurposeTTN)
	if err != nil {
		return nil, err
	}
	payload, signed, err := s.signedDocument(ctx, inv, cred, doc.XML, env)
	if err != nil {
		return nil, err
	}
	if cred.RequireSignature && !signed {
		return nil, domain.ErrSignatureRequired
	}

	// ── 3. Marca optimista de envío ──────────────────────────────────────────
	now := s.cfg.Now()
	var current *entity.Invoice
	err = s.d.Tx.RunInvoice(ctx, inv.ID, func(locked *entity.Invoice, r repository.Repositories) error {
		if !isSubmittable(locked.TTNStatus) {
			return domain.ErrInvoiceLockedTTN
		}
		locked.TTNStatus = entity.TTNStatusSubmitted
		locked.TTNLastError = ""
		locked.TTNSubmittedAt = &now
		locked.TTNScheduledAt = nil
		if err := r.Invoices.UpdateTTN(ctx, locked); err != nil {
			return err
		}
		if _, err := r.Queue.CancelActive(ctx, locked.ID, now); err != nil {
			return err
		}
		current = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	// ── 4. saveEfact fuera de la transacción ─────────────────────────────────
	res, callErr := s.d.TTN.SaveEfact(ctx, credentials(cred), payload)
	if callErr != nil {
		current.TTNStatus = entity.TTNStatusError
		current.TTNLastError = truncate(callErr.Error())
		if err := s.d.Invoices.UpdateTTN(ctx, current); err != nil {
			s.log.Error().Err(err).Str("invoice_id", inv.ID).Msg("no se pudo registrar el error de envío")
			return nil, errors.Join(callErr, fmt.Errorf("envío ttn: registrar estado error: %w", err))
		}
		s.publish(ctx, events.InvoiceTTNError, current, map[string]any{"error": current.TTNLastError})
		s.log.Warn().Err(callErr).Str("invoice_id", inv.ID).Msg("envío ttn fallido")
		return nil, callErr
	}

	current.TTNSaveID = res.IDSaveEfact
	if err := s.d.Invoices.UpdateTTN(ctx, current); err != nil {
		return nil, fmt.Errorf("envío ttn: guardar idSaveEfact: %w", err)
	}
	s.publish(ctx, events.InvoiceTTNSubmitted, current, map[string]any{"id_save_efact": res.IDSaveEfact, "signed": signed})
	s.log.Info().Str("invoice_id", inv.ID).Str("id_save_efact", res.IDSaveEfact).Bool("signed", signed).
		Int("size", len(payload)).Msg("factura enviada a ttn")

	return &dto.SubmitResponse{
		OK:          true,
		InvoiceID:   inv.ID,
		TTNStatus:   current.TTNStatus,
		IDSaveEfact: res.IDSaveEfact,
		Signed:      signed,
	}, nil
}

// signedDocument devuelve el XML a enviar: el firmado del libro si existe; si el proveedor
// es dss, el que devuelve el firmante; si no, el documento sin firma.
func (s *Service) signedDocument(ctx context.Context, inv *entity.Invoice, cred *entity.Credential, unsigned []byte, env string) ([]byte, bool, error) {
	entry, err := s.d.Signatures.Latest(ctx, inv.ID)
	if err != nil {
		return nil, false, fmt.Errorf("envío ttn: libro de firmas: %w", err)
	}
	if entry != nil && entry.IsSigned() && entry.SignedXML != "" {
		return []byte(entry.SignedXML), true, nil
	}
	if cred.SignatureProvider != string(entity.ProviderDSS) || s.d.DSS == nil {
		return unsigned, false, nil
	}

	signedXML, err := s.d.DSS.Sign(ctx, unsigned, s.dssConfig(cred))
	if err != nil {
		if cred.RequireSignature {
			return nil, false, err
		}
		s.log.Warn().Err(err).Str("invoice_id", inv.ID).Msg("firma dss no disponible: se envía sin firma")
		return unsigned, false, nil
	}
	if err := s.recordDSS(ctx, inv, env, unsigned, signedXML); err != nil {
		return nil, false, err
	}
	return signedXML, true, nil
}

func (s *Service) recordDSS(ctx context.Context, inv *entity.Invoice, env string, unsigned, signedXML []byte) error {
	if s.d.Ledger == nil {
		return nil
	}
	hash, err := teif.Digest(unsigned)
	if err != nil {
		return err
	}
	entry, err := s.d.Ledger.Open(ctx, signing.OpenRequest{
		InvoiceID:    inv.ID,
		CompanyID:    inv.CompanyID,
		Provider:     entity.ProviderDSS,
		Environment:  env,
		UnsignedXML:  string(unsigned),
		UnsignedHash: hash,
		Meta:         map[string]string{entity.MetaState: uuid.NewString()},
	})
	if err != nil {
		return err
	}
	if _, err := s.d.Ledger.Complete(ctx, entry.ID, string(signedXML), entity.SignatureProof{}, s.cfg.Now()); err != nil {
		return err
	}
	s.publish(ctx, events.InvoiceSigned, inv, map[string]any{"provider": entity.ProviderDSS.String(), "environment": env})
	return nil
}

func (s *Service) dssConfig(cred *entity.Credential) dss.Config {
	if c := cred.SignatureConfig.DSS; c != nil && c.URL != "" {
		return dss.Config{URL: c.URL, Token: c.Token, Profile: c.Profile}
	}
	return s.cfg.DSS
}

// Schedule programa el envío. Sin fecha se usa ahora + retraso configurado.
func (s *Service) Schedule(ctx context.Context, actor access.Actor, invoiceID string, req dto.ScheduleRequest) (*dto.ScheduleResponse, error) {
	env, err := s.cfg.environment(req.Environment)
	if err != nil {
		return nil, err
	}
	now := s.cfg.Now()
	at := now.Add(s.cfg.ScheduleDelay)
	if req.ScheduledAt != nil {
		at = req.ScheduledAt.UTC()
		if at.Before(now) {
			return nil, domain.ErrScheduleInPast
		}
	}

	var out *entity.Invoice
	err = s.d.Tx.RunInvoice(ctx, invoiceID, func(inv *entity.Invoice, r repository.Repositories) error {
		if err := access.Require(ctx, s.d.Access, actor, inv.CompanyID, entity.ActionSubmitTTN); err != nil {
			return err
		}
		if inv.IsQuote() {
			return domain.ErrDevisNotSendable
		}
		company, err := s.d.Companies.GetByID(ctx, inv.CompanyID)
		if err != nil {
			return fmt.Errorf("programar envío: empresa: %w", err)
		}
		if company != nil && company.ValidationRequired && inv.Status != entity.InvoiceStatusValidated {
			return domain.ErrValidationRequired
		}
		if !entity.IsEditableTTNStatus(inv.TTNStatus) && inv.TTNStatus != entity.TTNStatusScheduled {
			return domain.ErrInvoiceLockedTTN
		}

		if err := r.Queue.UpsertScheduled(ctx, &entity.QueueEntry{
			InvoiceID:   inv.ID,
			CompanyID:   inv.CompanyID,
			Environment: env,
			Status:      entity.QueueScheduled,
			ScheduledAt: at,
		}); err != nil {
			return err
		}
		inv.TTNStatus = entity.TTNStatusScheduled
		inv.TTNScheduledAt = &at
		out = inv
		return r.Invoices.UpdateTTN(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.InvoiceTTNScheduled, out, map[string]any{"scheduled_at": at})
	s.log.Info().Str("invoice_id", out.ID).Time("scheduled_at", at).Msg("envío ttn programado")
	return &dto.ScheduleResponse{OK: true, InvoiceID: out.ID, TTNStatus: out.TTNStatus, ScheduledAt: at}, nil
}

// Cancel anula un envío programado.
func (s *Service) Cancel(ctx context.Context, actor access.Actor, invoiceID string) (*dto.CancelResponse, error) {
	now := s.cfg.Now()
	var (
		out      *entity.Invoice
		canceled int64
	)
	err := s.d.Tx.RunInvoice(ctx, invoiceID, func(inv *entity.Invoice, r repository.Repositories) error {
		if err := access.Require(ctx, s.d.Access, actor, inv.CompanyID, entity.ActionSubmitTTN); err != nil {
			return err
		}
		if inv.TTNStatus != entity.TTNStatusScheduled {
			return domain.ErrNotScheduled
		}
		n, err := r.Queue.CancelActive(ctx, inv.ID, now)
		if err != nil {
			return err
		}
		canceled = n
		inv.TTNStatus = entity.TTNStatusNotSent
		inv.TTNScheduledAt = nil
		out = inv
		return r.Invoices.UpdateTTN(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.InvoiceTTNCanceled, out, nil)
	s.log.Info().Str("invoice_id", out.ID).Int64("canceled", canceled).Msg("envío ttn cancelado")
	return &dto.CancelResponse{OK: true, InvoiceID: out.ID, TTNStatus: out.TTNStatus, Canceled: canceled}, nil
}

// Status consulta consultEfact y actualiza el estado TTN de la factura.
func (s *Service) Status(ctx context.Context, actor access.Actor, invoiceID string) (*dto.TTNStatusResponse, error) {
	inv, err := s.invoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := access.Require(ctx, s.d.Access, actor, inv.CompanyID, entity.ActionSubmitTTN); err != nil {
		return nil, err
	}
	cred, err := s.d.Credentials.Get(ctx, inv.CompanyID, s.cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("estado ttn: credenciales: %w", err)
	}
	if cred == nil || cred.WSLogin == "" || cred.WSPassword == "" {
		return &dto.TTNStatusResponse{OK: true, Mode: "no_webservice", InvoiceID: inv.ID, TTNStatus: inv.TTNStatus}, nil
	}
	if inv.TTNSaveID == "" && inv.TTNGeneratedRef == "" {
		return nil, domain.ErrTTNReferenceMissing
	}

	res, err := s.d.TTN.ConsultEfact(ctx, credentials(cred), ttn.Criteria{
		IDSaveEfact:  inv.TTNSaveID,
		GeneratedRef: inv.TTNGeneratedRef,
	})
	if err != nil {
		return nil, err
	}

	now := s.cfg.Now()
	var out *entity.Invoice
	err = s.d.Tx.RunInvoice(ctx, inv.ID, func(locked *entity.Invoice, r repository.Repositories) error {
		locked.TTNStatus = res.Mapped
		if res.GeneratedRef != "" {
			locked.TTNGeneratedRef = res.GeneratedRef
		}
		switch res.Mapped {
		case entity.TTNStatusAccepted:
			locked.TTNValidatedAt = &now
			locked.TTNLastError = ""
		case entity.TTNStatusRejected:
			locked.TTNLastError = truncate(firstNonEmpty(res.Message, res.Etat, "REJECTED"))
		}
		out = locked
		return r.Invoices.UpdateTTN(ctx, locked)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.InvoiceTTNStatus, out, map[string]any{"etat": res.Etat, "status": res.Mapped})
	s.log.Info().Str("invoice_id", out.ID).Str("etat", res.Etat).Str("status", res.Mapped).Msg("estado ttn consultado")
	return &dto.TTNStatusResponse{
		OK:           true,
		InvoiceID:    out.ID,
		TTNStatus:    out.TTNStatus,
		Etat:         res.Etat,
		GeneratedRef: out.TTNGeneratedRef,
		Message:      res.Message,
	}, nil
}

func (s *Service) invoice(ctx context.Context, invoiceID string) (*entity.Invoice, error) {
	inv, err := s.d.Invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("obtener factura: %w", err)
	}
	if inv == nil {
		return nil, domain.ErrInvoiceNotFound
	}
	return inv, nil
}

func (s *Service) publish(ctx context.Context, typ string, inv *entity.Invoice, payload map[string]any) {
	err := s.d.Events.Publish(ctx, events.Event{Type: typ, InvoiceID: inv.ID, CompanyID: inv.CompanyID, Payload: payload})
	if err != nil {
		s.log.Error().Err(err).Str("invoice_id", inv.ID).Str("event", typ).Msg("no se pudo publicar el evento")
	}
}

// isSubmittable: editable o programada.
func isSubmittable(status string) bool {
	return entity.IsEditableTTNStatus(status) || status == entity.TTNStatusScheduled
}

func credentials(c *entity.Credential) ttn.Credentials {
	return ttn.Credentials{URL: c.WSURL, Login: c.WSLogin, Password: c.WSPassword, Matricule: c.WSMatricule}
}

func truncate(s string) string {
	return domain.TruncateText(s, maxLastError)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

