package signing

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jhoicas/facturetn-api/internal/application/access"
	"github.com/jhoicas/facturetn-api/internal/application/dto"
	"github.com/jhoicas/facturetn-api/internal/domain"
	"github.com/jhoicas/facturetn-api/internal/domain/entity"
	"github.com/jhoicas/facturetn-api/internal/domain/repository"
	"github.com/jhoicas/facturetn-api/internal/infrastructure/events"
	"github.com/jhoicas/facturetn-api/internal/infrastructure/teif"
	"github.com/jhoicas/facturetn-api/pkg/jwt"
)

// RemoteDeps dependencias del orquestador remoto. Cache es opcional.
type RemoteDeps struct {
	Docs        Documents
	Invoices    repository.InvoiceRepository
	Signatures  repository.SignatureRepository
	Sessions    repository.RemoteSessionRepository
	Credentials repository.CredentialRepository
	Tx          repository.TxRunner
	Signer      RemoteSignerClient
	Cache       SessionCache
	Events      events.Publisher
	Access      access.Checker
}

// RemoteOrchestrator flujo de firma por redirección al firmante remoto:
// start → callback (jti) → confirm (token, signHash, inyección).
type RemoteOrchestrator struct {
	d   RemoteDeps
	cfg Config
	log zerolog.Logger
}

// NewRemoteOrchestrator construye el orquestador. Signer nil = proveedor no configurado.
func NewRemoteOrchestrator(d RemoteDeps, cfg Config, log zerolog.Logger) *RemoteOrchestrator {
	if d.Events == nil {
		d.Events = events.NoopPublisher{}
	}
	return &RemoteOrchestrator{d: d, cfg: cfg.withDefaults(), log: log}
}

// Start prepara la firma remota de una factura y devuelve la URL de autorización.
func (o *RemoteOrchestrator) Start(ctx context.Context, actor access.Actor, req dto.DigiGoStartRequest) (*dto.DigiGoStartResponse, error) {
	invoiceID := strings.TrimSpace(req.InvoiceID)
	if invoiceID == "" {
		return nil, domain.ErrInvalidInvoiceID
	}
	env, err := o.cfg.environment(req.Environment)
	if err != nil {
		return nil, err
	}

	// ── 1. Factura y permisos ────────────────────────────────────────────────
	inv, err := o.d.Invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("digigo start: obtener factura: %w", err)
	}
	if inv == nil {
		return nil, domain.ErrInvoiceNotFound
	}
	if err := access.Require(ctx, o.d.Access, actor, inv.CompanyID, entity.ActionCreateInvoices); err != nil {
		return nil, err
	}
	if !entity.IsEditableTTNStatus(inv.TTNStatus) {
		return nil, domain.ErrInvoiceLocked
	}

	// ── 2. Identidad del firmante ────────────────────────────────────────────
	if o.d.Signer == nil {
		return nil, domain.ErrDigiGoNotConfigured
	}
	credentialID := strings.TrimSpace(req.CredentialID)
	if credentialID == "" {
		cred, err := o.d.Credentials.Get(ctx, inv.CompanyID, env)
		if err != nil {
			return nil, fmt.Errorf("digigo start: obtener credenciales: %w", err)
		}
		credentialID = cred.DigiGoCredentialID()
	}
	if credentialID == "" {
		return nil, domain.ErrDigiGoNotConfigured
	}

	// ── 3. Documento sin firma y su digest ───────────────────────────────────
	doc, err := o.d.Docs.BuildUnsigned(ctx, invoiceID, teif.PurposeTTN)
	if err != nil {
		return nil, err
	}
	if doc == nil || len(doc.XML) == 0 {
		return nil, domain.ErrUnsignedXMLMissing
	}
	hash, err := teif.Digest(doc.XML)
	if err != nil {
		return nil, err
	}

	// ── 4. Sesión + entrada pendiente en el libro ────────────────────────────
	now := o.cfg.Now()
	session := &entity.RemoteSession{
		State:       uuid.NewString(),
		InvoiceID:   invoiceID,
		CompanyID:   inv.CompanyID,
		UserID:      actor.UserID,
		BackURL:     safeBackURL(req.BackURL, invoiceID),
		Environment: env,
		Status:      entity.RemoteSessionPending,
		ExpiresAt:   now.Add(o.cfg.SessionTTL),
		CreatedAt:   now,
	}
	err = o.d.Tx.Run(ctx, func(r repository.Repositories) error {
		if err := r.Sessions.Create(ctx, session); err != nil {
			return err
		}
		if _, err := openIn(ctx, r.Signatures, OpenRequest{
			InvoiceID:    invoiceID,
			CompanyID:    inv.CompanyID,
			Provider:     entity.ProviderDigiGo,
			Environment:  env,
			UnsignedXML:  string(doc.XML),
			UnsignedHash: hash,
			SessionID:    session.ID,
			Meta:         map[string]string{entity.MetaCredentialID: credentialID, entity.MetaState: session.State},
		}); err != nil {
			return err
		}
		return r.Invoices.SetSignatureStatus(ctx, invoiceID, entity.SignatureStatusPending)
	})
	if err != nil {
		return nil, err
	}

	o.cache(ctx, session)
	o.log.Info().Str("invoice_id", invoiceID).Str("state", session.State).Str("environment", env).
		Msg("firma remota iniciada")

	return &dto.DigiGoStartResponse{
		OK:           true,
		AuthorizeURL: o.d.Signer.AuthorizeURL(credentialID, hash, session.State),
		State:        session.State,
		ExpiresAt:    session.ExpiresAt,
	}, nil
}

// Callback vincula el jti del artefacto devuelto a la sesión pendiente. Con state la sesión
// se busca por state; sin él se usa la sesión abierta más reciente.
func (o *RemoteOrchestrator) Callback(ctx context.Context, req dto.DigiGoCallbackRequest) (*dto.DigiGoCallbackResponse, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		token = strings.TrimSpace(req.Code)
	}
	if token == "" {
		return nil, domain.ErrMissingToken
	}
	jti, err := transactionID(token)
	if err != nil {
		return nil, err
	}

	now := o.cfg.Now()
	state := strings.TrimSpace(req.State)
	var session *entity.RemoteSession
	if state != "" {
		session, err = o.d.Sessions.GetByState(ctx, state)
		if err != nil {
			return nil, fmt.Errorf("digigo callback: sesión: %w", err)
		}
		if session != nil && session.JTI == jti && session.Status == entity.RemoteSessionDone {
			return callbackResponse(session), nil
		}
		if session == nil || !session.IsOpen(now) {
			return nil, domain.ErrSessionNotFound
		}
	} else {
		session, err = o.d.Sessions.LatestOpen(ctx, now)
		if err != nil {
			return nil, fmt.Errorf("digigo callback: sesión reciente: %w", err)
		}
		if session == nil {
			return nil, domain.ErrSessionNotFound
		}
		o.log.Warn().Str("state", session.State).Str("invoice_id", session.InvoiceID).
			Msg("callback sin state: sesión elegida por recencia")
	}

	bound, err := o.d.Sessions.BindJTI(ctx, session.ID, jti, now)
	if err != nil {
		return nil, fmt.Errorf("digigo callback: vincular jti: %w", err)
	}
	if !bound {
		return nil, domain.ErrSessionNotFound
	}
	session.JTI, session.Status = jti, entity.RemoteSessionDone
	o.cache(ctx, session)
	o.log.Info().Str("state", session.State).Str("invoice_id", session.InvoiceID).Msg("callback remoto recibido")
	return callbackResponse(session), nil
}

// Confirm canjea el jti, firma el digest guardado e inyecta la firma en el documento.
// Cualquier fallo deja la entrada en pending y la sesión en error.
func (o *RemoteOrchestrator) Confirm(ctx context.Context, req dto.DigiGoConfirmRequest) (*dto.DigiGoConfirmResponse, error) {
	token, state, invoiceID := strings.TrimSpace(req.Token), strings.TrimSpace(req.State), strings.TrimSpace(req.InvoiceID)
	switch {
	case token == "":
		return nil, domain.ErrMissingToken
	case state == "":
		return nil, domain.ErrMissingState
	case invoiceID == "":
		return nil, domain.ErrInvalidInvoiceID
	}

	// ── 1. Precondiciones sobre la entrada del libro ─────────────────────────
	entry, err := o.d.Signatures.Get(ctx, invoiceID, entity.ProviderDigiGo)
	if err != nil {
		return nil, fmt.Errorf("digigo confirm: libro: %w", err)
	}
	if entry == nil {
		return nil, domain.ErrSignatureNotFound
	}
	session, err := o.d.Sessions.GetByState(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("digigo confirm: sesión: %w", err)
	}
	if entry.IsSigned() && entry.CorrelationID() == state {
		return confirmResponse(entry, session), nil
	}
	credentialID := entry.Meta[entity.MetaCredentialID]
	switch {
	case credentialID == "":
		return nil, domain.ErrCredentialIDMissing
	case entry.UnsignedXML == "":
		return nil, domain.ErrUnsignedXMLMissing
	case entry.UnsignedHash == "":
		return nil, domain.ErrUnsignedHashMissing
	case entry.CorrelationID() != state:
		return nil, domain.ErrStateMismatch
	}
	jti, err := transactionID(token)
	if err != nil {
		return nil, err
	}
	// el jti vinculado en el callback es el único que puede confirmar la sesión
	if session != nil && session.JTI != "" && session.JTI != jti {
		return nil, domain.ErrStateMismatch
	}
	if o.d.Signer == nil {
		return nil, domain.ErrDigiGoNotConfigured
	}

	// ── 2. Firmante remoto ───────────────────────────────────────────────────
	sad, err := o.d.Signer.ExchangeToken(ctx, jti)
	if err != nil {
		return nil, o.fail(ctx, session, err)
	}
	signature, err := o.d.Signer.SignHash(ctx, credentialID, sad, entry.UnsignedHash)
	if err != nil {
		return nil, o.fail(ctx, session, err)
	}
	signedXML, err := teif.InjectSignature([]byte(entry.UnsignedXML), signature)
	if err != nil {
		return nil, o.fail(ctx, session, err)
	}

	// ── 3. Completar libro y sesión ──────────────────────────────────────────
	var (
		completed *entity.SignatureEntry
		changed   bool
	)
	err = o.d.Tx.Run(ctx, func(r repository.Repositories) error {
		var err error
		completed, changed, err = completeIn(ctx, r, entry.ID, string(signedXML), entity.SignatureProof{
			JTI:  jti,
			SAD:  sad,
			Meta: map[string]string{entity.MetaState: state},
		}, o.cfg.Now())
		if err != nil {
			return err
		}
		if session != nil {
			return r.Sessions.UpdateStatus(ctx, session.ID, entity.RemoteSessionCallbackOK, "")
		}
		return nil
	})
	if err != nil {
		return nil, o.fail(ctx, session, err)
	}
	if changed {
		o.publishSigned(ctx, completed)
	}
	o.log.Info().Str("invoice_id", invoiceID).Str("state", state).Msg("firma remota confirmada")
	return confirmResponse(completed, session), nil
}

// Context contexto de una sesión remota en curso: caché primero, luego base de datos.
func (o *RemoteOrchestrator) Context(ctx context.Context, state string) (*dto.DigiGoContextResponse, error) {
	state = strings.TrimSpace(state)
	if state == "" {
		return nil, domain.ErrMissingState
	}
	if o.d.Cache != nil {
		sc, err := o.d.Cache.Get(ctx, state)
		if err != nil {
			o.log.Warn().Err(err).Msg("caché de sesiones no disponible")
		} else if sc != nil && isResumable(sc.Status) {
			return &dto.DigiGoContextResponse{OK: true, InvoiceID: sc.InvoiceID, BackURL: sc.BackURL, Status: sc.Status}, nil
		}
	}
	s, err := o.d.Sessions.GetByState(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("digigo context: %w", err)
	}
	if s == nil || !isResumable(s.Status) {
		return nil, domain.ErrSessionNotFound
	}
	return &dto.DigiGoContextResponse{OK: true, InvoiceID: s.InvoiceID, BackURL: s.BackURL, Status: s.Status}, nil
}

// FlowState estado del flujo remoto de una factura.
func (o *RemoteOrchestrator) FlowState(ctx context.Context, actor access.Actor, invoiceID string) (entity.RemoteFlowState, error) {
	inv, err := o.d.Invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return "", fmt.Errorf("digigo estado: obtener factura: %w", err)
	}
	if inv == nil {
		return "", domain.ErrInvoiceNotFound
	}
	if err := access.Require(ctx, o.d.Access, actor, inv.CompanyID, entity.ActionCreateInvoices); err != nil {
		return "", err
	}
	session, err := o.d.Sessions.LatestForInvoice(ctx, invoiceID)
	if err != nil {
		return "", fmt.Errorf("digigo estado: sesión: %w", err)
	}
	entry, err := o.d.Signatures.Get(ctx, invoiceID, entity.ProviderDigiGo)
	if err != nil {
		return "", fmt.Errorf("digigo estado: libro: %w", err)
	}
	return entity.DeriveRemoteFlowState(session, entry), nil
}

func (o *RemoteOrchestrator) fail(ctx context.Context, session *entity.RemoteSession, cause error) error {
	if session != nil {
		if err := o.d.Sessions.UpdateStatus(ctx, session.ID, entity.RemoteSessionError, cause.Error()); err != nil {
			o.log.Error().Err(err).Str("state", session.State).Msg("no se pudo marcar la sesión en error")
		}
	}
	o.log.Warn().Err(cause).Msg("firma remota fallida")
	return cause
}

func (o *RemoteOrchestrator) cache(ctx context.Context, s *entity.RemoteSession) {
	if o.d.Cache == nil {
		return
	}
	ttl := s.ExpiresAt.Sub(o.cfg.Now())
	if ttl <= 0 {
		ttl = o.cfg.SessionTTL
	}
	err := o.d.Cache.Put(ctx, entity.SessionContext{
		State:     s.State,
		InvoiceID: s.InvoiceID,
		CompanyID: s.CompanyID,
		BackURL:   s.BackURL,
		Status:    s.Status,
		ExpiresAt: s.ExpiresAt,
	}, ttl)
	if err != nil {
		o.log.Warn().Err(err).Str("state", s.State).Msg("no se pudo cachear la sesión remota")
	}
}

func (o *RemoteOrchestrator) publishSigned(ctx context.Context, e *entity.SignatureEntry) {
	err := o.d.Events.Publish(ctx, events.Event{
		Type:      events.InvoiceSigned,
		InvoiceID: e.InvoiceID,
		CompanyID: e.CompanyID,
		Payload:   map[string]any{"provider": e.Provider.String(), "environment": e.Environment},
	})
	if err != nil {
		o.log.Error().Err(err).Str("invoice_id", e.InvoiceID).Msg("no se pudo publicar invoice.signed")
	}
}

func transactionID(token string) (string, error) {
	jti, err := jwt.TransactionID(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
	}
	if jti == "" {
		return "", domain.ErrJTIMissing
	}
	return jti, nil
}

// safeBackURL solo admite rutas locales; el resto vuelve a la factura.
func safeBackURL(back, invoiceID string) string {
	back = strings.TrimSpace(back)
	if back == "" || !strings.HasPrefix(back, "/") || strings.HasPrefix(back, "//") || strings.Contains(back, `\`) {
		return "/invoices/" + invoiceID
	}
	return back
}

func isResumable(status string) bool {
	return status == entity.RemoteSessionPending || status == entity.RemoteSessionDone
}

func callbackResponse(s *entity.RemoteSession) *dto.DigiGoCallbackResponse {
	return &dto.DigiGoCallbackResponse{OK: true, State: s.State, InvoiceID: s.InvoiceID, BackURL: s.BackURL}
}

func confirmResponse(e *entity.SignatureEntry, s *entity.RemoteSession) *dto.DigiGoConfirmResponse {
	out := &dto.DigiGoConfirmResponse{OK: true, InvoiceID: e.InvoiceID, SignatureID: e.ID, SignedAt: e.SignedAt}
	if s != nil {
		out.BackURL = s.BackURL
	}
	return out
}
