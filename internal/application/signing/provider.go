package signing

import (
	"context"
	"fmt"

	"github.com/jhoicas/facturetn-api/internal/application/access"
	"github.com/jhoicas/facturetn-api/internal/application/dto"
	"github.com/jhoicas/facturetn-api/internal/domain"
	"github.com/jhoicas/facturetn-api/internal/domain/entity"
)

// RemoteSigner proveedor que firma tras una redirección del navegador.
type RemoteSigner interface {
	Start(ctx context.Context, actor access.Actor, req dto.DigiGoStartRequest) (*dto.DigiGoStartResponse, error)
	Confirm(ctx context.Context, req dto.DigiGoConfirmRequest) (*dto.DigiGoConfirmResponse, error)
}

// AgentSigner proveedor que firma en la máquina del usuario tras emparejarse.
type AgentSigner interface {
	IssuePairingToken(ctx context.Context, actor access.Actor, req dto.PairTokenRequest) (*dto.DeepLinkResponse, error)
	RedeemPairing(ctx context.Context, req dto.AgentPairRequest) (*dto.AgentPairResponse, error)
	IssueSignToken(ctx context.Context, actor access.Actor, req dto.SignTokenRequest) (*dto.DeepLinkResponse, error)
	RedeemSigning(ctx context.Context, req dto.AgentSignedXMLRequest) (*dto.AgentSignedXMLResponse, error)
}

var (
	_ RemoteSigner = (*RemoteOrchestrator)(nil)
	_ AgentSigner  = (*AgentOrchestrator)(nil)
)

// Providers despacho por proveedor sobre el conjunto cerrado entity.SignatureProvider.
// dss firma en el servidor durante el envío y no expone ninguna de las dos capacidades.
type Providers struct {
	remote map[entity.SignatureProvider]RemoteSigner
	agent  map[entity.SignatureProvider]AgentSigner
}

// NewProviders registra DigiGo como firmante remoto y el agente USB como firmante local.
func NewProviders(remote RemoteSigner, agent AgentSigner) *Providers {
	p := &Providers{
		remote: map[entity.SignatureProvider]RemoteSigner{},
		agent:  map[entity.SignatureProvider]AgentSigner{},
	}
	if remote != nil {
		p.remote[entity.ProviderDigiGo] = remote
	}
	if agent != nil {
		p.agent[entity.ProviderUSBAgent] = agent
	}
	return p
}

// Remote firmante remoto del proveedor.
func (p *Providers) Remote(provider entity.SignatureProvider) (RemoteSigner, error) {
	if s, ok := p.remote[provider]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s no firma por redirección", domain.ErrSignatureProviderBad, provider)
}

// Agent firmante local del proveedor.
func (p *Providers) Agent(provider entity.SignatureProvider) (AgentSigner, error) {
	if s, ok := p.agent[provider]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s no firma con agente local", domain.ErrSignatureProviderBad, provider)
}

// Modos de firma expuestos a la interfaz.
const (
	ModeRedirect = "redirect"
	ModeAgent    = "agent"
	ModeServer   = "server"
)

// Mode cómo firma el proveedor en esta instalación; "" si no está disponible.
func (p *Providers) Mode(provider entity.SignatureProvider) string {
	if _, ok := p.remote[provider]; ok {
		return ModeRedirect
	}
	if _, ok := p.agent[provider]; ok {
		return ModeAgent
	}
	if provider == entity.ProviderDSS {
		return ModeServer
	}
	return ""
}
