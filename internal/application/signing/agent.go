package signing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jhoicas/facturetn-api/internal/application/access"
	"github.com/jhoicas/facturetn-api/internal/application/dto"
	"github.com/jhoicas/facturetn-api/internal/domain"
	"github.com/jhoicas/facturetn-api/internal/domain/entity"
	"github.com/jhoicas/facturetn-api/internal/domain/repository"
	"github.com/jhoicas/facturetn-api/internal/infrastructure/events"
	"github.com/jhoicas/facturetn-api/internal/infrastructure/teif"
)

// AgentDeps dependencias del orquestador del agente local.
type AgentDeps struct {
	Docs        Documents
	Invoices    repository.InvoiceRepository
	Tokens      repository.TokenRepository
	Credentials repository.CredentialRepository
	Tx          repository.TxRunner
	Events      events.Publisher
	Access      access.Checker
}

// AgentOrchestrator emparejamiento y firma con el agente local mediante tokens de un solo uso.
type AgentOrchestrator struct {
	d   AgentDeps
	cfg Config
	log zerolog.Logger
}

// NewAgentOrchestrator construye el orquestador.
func NewAgentOrchestrator(d AgentDeps, cfg Config, log zerolog.Logger) *AgentOrchestrator {
	if d.Events == nil {
		d.Events = events.NoopPublisher{}
	}
	return &AgentOrchestrator{d: d, cfg: cfg.withDefaults(), log: log}
}

// IssuePairingToken token de emparejamiento para (empresa, entorno) y su deep link.
func (o *AgentOrchestrator) IssuePairingToken(ctx context.Context, actor access.Actor, req dto.PairTokenRequest) (*dto.DeepLinkResponse, error) {
	companyID := strings.TrimSpace(req.CompanyID)
	if companyID == "" {
		companyID = actor.CompanyID
	}
	env, err := o.cfg.environment(req.Environment)
	if err != nil {
		return nil, err
	}
	if err := access.Require(ctx, o.d.Access, actor, companyID, entity.ActionSubmitTTN); err != nil {
		return nil, err
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}
	now := o.cfg.Now()
	pt := &entity.PairToken{
		Token:       token,
		CompanyID:   companyID,
		Environment: env,
		CreatedBy:   actor.UserID,
		ExpiresAt:   now.Add(o.cfg.AgentTokenTTL),
		CreatedAt:   now,
	}
	err = o.d.Tx.Run(ctx, func(r repository.Repositories) error {
		if err := r.Tokens.CreatePairToken(ctx, pt); err != nil {
			return err
		}
		return r.Credentials.SetSignatureStatus(ctx, companyID, env, entity.CredentialSignaturePairing)
	})
	if err != nil {
		return nil, err
	}

	o.log.Info().Str("company_id", companyID).Str("environment", env).Msg("token de emparejamiento emitido")
	return &dto.DeepLinkResponse{
		OK:        true,
		Token:     token,
		ExpiresAt: pt.ExpiresAt,
		DeepLink:  o.deepLink("pair", url.Values{"token": {token}, "company_id": {companyID}, "env": {env}}),
	}, nil
}

// RedeemPairing canjea el token y empareja el certificado. El canje y la credencial se escriben
// en la misma transacción: si el token no es válido no queda nada escrito.
func (o *AgentOrchestrator) RedeemPairing(ctx context.Context, req dto.AgentPairRequest) (*dto.AgentPairResponse, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return nil, domain.ErrTokenInvalid
	}
	companyID := strings.TrimSpace(req.CompanyID)
	env, err := o.cfg.environment(strings.TrimSpace(req.Environment))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Cert.Thumbprint) == "" && strings.TrimSpace(req.Cert.SerialNumber) == "" {
		return nil, domain.ErrCertMissing
	}

	now := o.cfg.Now()
	var cred *entity.Credential
	err = o.d.Tx.Run(ctx, func(r repository.Repositories) error {
		claimed, err := r.Tokens.ClaimPairToken(ctx, token, companyID, env, now)
		if err != nil {
			return fmt.Errorf("emparejamiento: canjear token: %w", err)
		}
		if claimed == nil {
			return o.classifyPair(ctx, r.Tokens, token, companyID, env)
		}

		cred, err = r.Credentials.Get(ctx, companyID, env)
		if err != nil {
			return fmt.Errorf("emparejamiento: obtener credenciales: %w", err)
		}
		if cred == nil {
			cred = &entity.Credential{CompanyID: companyID, Environment: env, SendMode: entity.SendModeManual}
		}
		cert := req.Cert
		cred.SignatureProvider = string(entity.ProviderUSBAgent)
		cred.SignatureStatus = entity.CredentialSignaturePaired
		cred.SignatureConfig.USBAgent = &cert
		cred.RequireSignature = true
		return r.Credentials.Upsert(ctx, cred)
	})
	if err != nil {
		return nil, err
	}

	o.log.Info().Str("company_id", companyID).Str("environment", env).
		Str("thumbprint", req.Cert.Thumbprint).Msg("agente local emparejado")
	return &dto.AgentPairResponse{OK: true, CompanyID: companyID, Environment: env, SignatureStatus: cred.SignatureStatus}, nil
}

// RecordView registra que el usuario visualizó la factura, requisito del token de firma.
func (o *AgentOrchestrator) RecordView(ctx context.Context, actor access.Actor, invoiceID string) error {
	inv, err := o.d.Invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return fmt.Errorf("visualización: obtener factura: %w", err)
	}
	if inv == nil {
		return domain.ErrInvoiceNotFound
	}
	if err := access.Require(ctx, o.d.Access, actor, inv.CompanyID, entity.ActionSubmitTTN); err != nil {
		return err
	}
	return o.d.Tokens.RecordView(ctx, &entity.InvoiceView{InvoiceID: inv.ID, ViewedBy: actor.UserID, ViewedAt: o.cfg.Now()})
}

// IssueSignToken token de firma de una factura concreta. Exige haberla visualizado antes.
func (o *AgentOrchestrator) IssueSignToken(ctx context.Context, actor access.Actor, req dto.SignTokenRequest) (*dto.DeepLinkResponse, error) {
	invoiceID := strings.TrimSpace(req.InvoiceID)
	if invoiceID == "" {
		return nil, domain.ErrInvalidInvoiceID
	}
	env, err := o.cfg.environment(req.Environment)
	if err != nil {
		return nil, err
	}
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	now := o.cfg.Now()
	var st *entity.SignToken
	err = o.d.Tx.RunInvoice(ctx, invoiceID, func(inv *entity.Invoice, r repository.Repositories) error {
		if err := access.Require(ctx, o.d.Access, actor, inv.CompanyID, entity.ActionSubmitTTN); err != nil {
			return err
		}
		if inv.IsLocked() {
			return domain.ErrInvoiceLocked
		}
		viewed, err := r.Tokens.HasViewed(ctx, inv.ID, actor.UserID)
		if err != nil {
			return fmt.Errorf("token de firma: visualización: %w", err)
		}
		if !viewed {
			return domain.ErrMustViewInvoice
		}
		st = &entity.SignToken{
			Token:       token,
			CompanyID:   inv.CompanyID,
			InvoiceID:   inv.ID,
			Environment: env,
			UserID:      actor.UserID,
			ExpiresAt:   now.Add(o.cfg.AgentTokenTTL),
			CreatedAt:   now,
		}
		return r.Tokens.CreateSignToken(ctx, st)
	})
	if err != nil {
		return nil, err
	}

	o.log.Info().Str("invoice_id", invoiceID).Str("environment", env).Msg("token de firma emitido")
	return &dto.DeepLinkResponse{
		OK:        true,
		Token:     token,
		ExpiresAt: st.ExpiresAt,
		DeepLink:  o.deepLink("sign", url.Values{"token": {token}, "invoice_id": {invoiceID}, "env": {env}}),
	}, nil
}

// SignPayload documento que el agente debe firmar. No consume el token; abre la entrada
// usb_agent en pending con el token como correlación.
func (o *AgentOrchestrator) SignPayload(ctx context.Context, token string) (*dto.SignPayloadResponse, error) {
	token = strings.TrimSpace(token)
	st, err := o.d.Tokens.GetSignToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("sign payload: token: %w", err)
	}
	switch {
	case token == "" || st == nil:
		return nil, domain.ErrTokenInvalid
	case st.UsedAt != nil:
		return nil, domain.ErrTokenAlreadyUsed
	case !o.cfg.Now().Before(st.ExpiresAt):
		return nil, domain.ErrTokenExpired
	}

	doc, err := o.d.Docs.BuildUnsigned(ctx, st.InvoiceID, teif.PurposeTTN)
	if err != nil {
		return nil, err
	}
	hash, err := teif.Digest(doc.XML)
	if err != nil {
		return nil, err
	}
	err = o.d.Tx.Run(ctx, func(r repository.Repositories) error {
		if _, err := openIn(ctx, r.Signatures, OpenRequest{
			InvoiceID:    st.InvoiceID,
			CompanyID:    st.CompanyID,
			Provider:     entity.ProviderUSBAgent,
			Environment:  st.Environment,
			UnsignedXML:  string(doc.XML),
			UnsignedHash: hash,
			Meta:         map[string]string{entity.MetaState: token},
		}); err != nil {
			return err
		}
		return r.Invoices.SetSignatureStatus(ctx, st.InvoiceID, entity.SignatureStatusPending)
	})
	if err != nil {
		return nil, err
	}

	out := &dto.SignPayloadResponse{
		OK:          true,
		InvoiceID:   st.InvoiceID,
		CompanyID:   st.CompanyID,
		Environment: st.Environment,
		XML:         string(doc.XML),
	}
	cred, err := o.d.Credentials.Get(ctx, st.CompanyID, st.Environment)
	if err != nil {
		return nil, fmt.Errorf("sign payload: credenciales: %w", err)
	}
	if cred != nil && cred.SignatureConfig.USBAgent != nil {
		out.Thumbprint = cred.SignatureConfig.USBAgent.Thumbprint
	}
	return out, nil
}

// RedeemSigning canjea el token de firma y completa la entrada usb_agent con el XML firmado
// por el agente. La firma criptográfica no se verifica aquí.
func (o *AgentOrchestrator) RedeemSigning(ctx context.Context, req dto.AgentSignedXMLRequest) (*dto.AgentSignedXMLResponse, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return nil, domain.ErrTokenInvalid
	}
	signedXML := strings.TrimSpace(req.SignedXML)
	if signedXML == "" {
		return nil, domain.ErrSignedXMLEmpty
	}
	if !teif.HasSignature([]byte(signedXML)) {
		return nil, domain.ErrSignatureBlockInvalid
	}
	scope := repository.SignTokenScope{InvoiceID: strings.TrimSpace(req.InvoiceID), Environment: strings.TrimSpace(req.Environment)}

	now := o.cfg.Now()
	var entry *entity.SignatureEntry
	var changed bool
	err := o.d.Tx.Run(ctx, func(r repository.Repositories) error {
		// ── 1. Canje atómico del token ───────────────────────────────────────
		st, err := r.Tokens.ClaimSignToken(ctx, token, scope, now)
		if err != nil {
			return fmt.Errorf("firma local: canjear token: %w", err)
		}
		if st == nil {
			return o.classifySign(ctx, r.Tokens, token, scope)
		}

		// ── 2. Certificado: el enviado o el emparejado ───────────────────────
		cert := req.Cert
		if cert == nil {
			cred, err := r.Credentials.Get(ctx, st.CompanyID, st.Environment)
			if err != nil {
				return fmt.Errorf("firma local: credenciales: %w", err)
			}
			if cred != nil {
				cert = cred.SignatureConfig.USBAgent
			}
		}
		if cert == nil {
			return domain.ErrCertMissing
		}

		// ── 3. Entrada del libro ─────────────────────────────────────────────
		current, err := r.Signatures.Get(ctx, st.InvoiceID, entity.ProviderUSBAgent)
		if err != nil {
			return fmt.Errorf("firma local: libro: %w", err)
		}
		if current == nil || (!current.IsSigned() && current.CorrelationID() != token) {
			// el agente no pidió el sign-payload con este token: se abre aquí
			doc, err := o.d.Docs.BuildUnsigned(ctx, st.InvoiceID, teif.PurposeTTN)
			if err != nil {
				return err
			}
			hash, err := teif.Digest(doc.XML)
			if err != nil {
				return err
			}
			current, err = openIn(ctx, r.Signatures, OpenRequest{
				InvoiceID:    st.InvoiceID,
				CompanyID:    st.CompanyID,
				Provider:     entity.ProviderUSBAgent,
				Environment:  st.Environment,
				UnsignedXML:  string(doc.XML),
				UnsignedHash: hash,
				Meta:         map[string]string{entity.MetaState: token},
			})
			if err != nil {
				return err
			}
		}
		if current.IsSigned() {
			return domain.ErrAlreadySigned
		}

		entry, changed, err = completeIn(ctx, r, current.ID, signedXML, entity.SignatureProof{
			CertSubject: cert.Subject,
			CertSerial:  cert.SerialNumber,
			Meta:        map[string]string{"thumbprint": cert.Thumbprint, "issuer": cert.Issuer},
		}, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	if changed {
		if err := o.d.Events.Publish(ctx, events.Event{
			Type:      events.InvoiceSigned,
			InvoiceID: entry.InvoiceID,
			CompanyID: entry.CompanyID,
			Payload:   map[string]any{"provider": entry.Provider.String(), "environment": entry.Environment},
		}); err != nil {
			o.log.Error().Err(err).Str("invoice_id", entry.InvoiceID).Msg("no se pudo publicar invoice.signed")
		}
	}
	o.log.Info().Str("invoice_id", entry.InvoiceID).Msg("firma local registrada")
	return &dto.AgentSignedXMLResponse{OK: true, InvoiceID: entry.InvoiceID, SignatureID: entry.ID, SignedAt: entry.SignedAt}, nil
}

// classifyPair relee el token tras un canje fallido: existencia, alcance, uso y expiración.
func (o *AgentOrchestrator) classifyPair(ctx context.Context, tokens repository.TokenRepository, token, companyID, env string) error {
	pt, err := tokens.GetPairToken(ctx, token)
	if err != nil {
		return fmt.Errorf("emparejamiento: releer token: %w", err)
	}
	switch {
	case pt == nil:
		return domain.ErrTokenInvalid
	case pt.CompanyID != companyID || pt.Environment != env:
		return domain.ErrTokenMismatch
	case pt.UsedAt != nil:
		return domain.ErrTokenAlreadyUsed
	case !o.cfg.Now().Before(pt.ExpiresAt):
		return domain.ErrTokenExpired
	}
	return domain.ErrTokenInvalid
}

func (o *AgentOrchestrator) classifySign(ctx context.Context, tokens repository.TokenRepository, token string, scope repository.SignTokenScope) error {
	st, err := tokens.GetSignToken(ctx, token)
	if err != nil {
		return fmt.Errorf("firma local: releer token: %w", err)
	}
	switch {
	case st == nil:
		return domain.ErrTokenInvalid
	case scope.InvoiceID != "" && st.InvoiceID != scope.InvoiceID,
		scope.Environment != "" && st.Environment != scope.Environment:
		return domain.ErrTokenMismatch
	case st.UsedAt != nil:
		return domain.ErrTokenAlreadyUsed
	case !o.cfg.Now().Before(st.ExpiresAt):
		return domain.ErrTokenExpired
	}
	return domain.ErrTokenInvalid
}

// deepLink {scheme}://{action}?server=…&…
func (o *AgentOrchestrator) deepLink(action string, q url.Values) string {
	q.Set("server", o.cfg.PublicOrigin)
	return o.cfg.AgentScheme + "://" + action + "?" + q.Encode()
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
