package http

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/jhoicas/facturetn-api/internal/application/access"
	"github.com/jhoicas/facturetn-api/internal/application/billing"
	"github.com/jhoicas/facturetn-api/internal/application/dto"
	"github.com/jhoicas/facturetn-api/internal/domain/entity"
	teifdomain "github.com/jhoicas/facturetn-api/internal/domain/teif"
)

// RemoteSigning firma remota DigiGo.
type RemoteSigning interface {
	Start(ctx context.Context, actor access.Actor, req dto.DigiGoStartRequest) (*dto.DigiGoStartResponse, error)
	Callback(ctx context.Context, req dto.DigiGoCallbackRequest) (*dto.DigiGoCallbackResponse, error)
	Confirm(ctx context.Context, req dto.DigiGoConfirmRequest) (*dto.DigiGoConfirmResponse, error)
	Context(ctx context.Context, state string) (*dto.DigiGoContextResponse, error)
	FlowState(ctx context.Context, actor access.Actor, invoiceID string) (entity.RemoteFlowState, error)
}

// AgentSigning emparejamiento y firma con el agente local.
type AgentSigning interface {
	IssuePairingToken(ctx context.Context, actor access.Actor, req dto.PairTokenRequest) (*dto.DeepLinkResponse, error)
	RedeemPairing(ctx context.Context, req dto.AgentPairRequest) (*dto.AgentPairResponse, error)
	RecordView(ctx context.Context, actor access.Actor, invoiceID string) error
	IssueSignToken(ctx context.Context, actor access.Actor, req dto.SignTokenRequest) (*dto.DeepLinkResponse, error)
	SignPayload(ctx context.Context, token string) (*dto.SignPayloadResponse, error)
	RedeemSigning(ctx context.Context, req dto.AgentSignedXMLRequest) (*dto.AgentSignedXMLResponse, error)
}

// Invoices operaciones de factura: descargas, borrado, declaración, validación y credenciales.
type Invoices interface {
	UnsignedXML(ctx context.Context, actor access.Actor, invoiceID string) (*billing.UnsignedDocument, error)
	SignedXML(ctx context.Context, actor access.Actor, invoiceID string) ([]byte, error)
	Validate(ctx context.Context, actor access.Actor, invoiceID string) (teifdomain.Result, error)
	Delete(ctx context.Context, actor access.Actor, invoiceID string) error
	Declare(ctx context.Context, actor access.Actor, invoiceID string, req dto.DeclarationRequest) (*dto.DeclarationResponse, error)
	MarkValidated(ctx context.Context, actor access.Actor, invoiceID string) (dto.OKResponse, error)
	SaveCredentials(ctx context.Context, actor access.Actor, req dto.SaveCredentialsRequest) (*dto.CredentialResponse, error)
	Credentials(ctx context.Context, companyID, env string) (*dto.CredentialResponse, error)
}

// ProviderCatalog modo de firma de cada proveedor.
type ProviderCatalog interface {
	Mode(provider entity.SignatureProvider) string
}

// InvoicePDF representación gráfica.
type InvoicePDF interface {
	DownloadInvoicePDF(ctx context.Context, actor access.Actor, invoiceID string) ([]byte, string, error)
}

// Submissions envío a TTN.
type Submissions interface {
	Submit(ctx context.Context, actor access.Actor, invoiceID string, req dto.SubmitRequest) (*dto.SubmitResponse, error)
	Schedule(ctx context.Context, actor access.Actor, invoiceID string, req dto.ScheduleRequest) (*dto.ScheduleResponse, error)
	Cancel(ctx context.Context, actor access.Actor, invoiceID string) (*dto.CancelResponse, error)
	Status(ctx context.Context, actor access.Actor, invoiceID string) (*dto.TTNStatusResponse, error)
}

type handlers struct {
	remote      RemoteSigning
	agent       AgentSigning
	invoices    Invoices
	pdf         InvoicePDF
	submissions Submissions
	providers   ProviderCatalog
	log         zerolog.Logger
}
