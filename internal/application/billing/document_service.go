package billing

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jhoicas/facturetn-api/internal/domain"
	"github.com/jhoicas/facturetn-api/internal/domain/entity"
	"github.com/jhoicas/facturetn-api/internal/domain/repository"
	"github.com/jhoicas/facturetn-api/internal/infrastructure/teif"
)

// UnsignedDocument documento TEIF sin firma listo para firmar o descargar.
type UnsignedDocument struct {
	Invoice *entity.Invoice
	Company *entity.Company
	Items   []*entity.InvoiceItem
	Purpose string
	XML     []byte
	Size    teif.SizeResult
}

// DocumentService construye el documento TEIF canónico de una factura.
// Con propósito ttn el documento siempre sale validado y dentro del tamaño máximo.
type DocumentService struct {
	invoices  repository.InvoiceRepository
	companies repository.CompanyRepository
	builder   *teif.Builder
	maxBytes  int
	log       zerolog.Logger
}

// NewDocumentService construye el servicio. maxBytes 0 usa el máximo por defecto de TTN.
func NewDocumentService(
	invoices repository.InvoiceRepository,
	companies repository.CompanyRepository,
	builder *teif.Builder,
	maxBytes int,
	log zerolog.Logger,
) *DocumentService {
	return &DocumentService{invoices: invoices, companies: companies, builder: builder, maxBytes: maxBytes, log: log}
}

// Load carga factura, líneas y empresa emisora.
func (s *DocumentService) Load(ctx context.Context, invoiceID string) (*entity.Invoice, []*entity.InvoiceItem, *entity.Company, error) {
	inv, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("documento: obtener factura: %w", err)
	}
	if inv == nil {
		return nil, nil, nil, domain.ErrInvoiceNotFound
	}
	items, err := s.invoices.GetItems(ctx, invoiceID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("documento: obtener líneas: %w", err)
	}
	company, err := s.companies.GetByID(ctx, inv.CompanyID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("documento: obtener empresa: %w", err)
	}
	if company == nil {
		return nil, nil, nil, domain.ErrCompanyNotFound
	}
	return inv, items, company, nil
}

// BuildUnsigned carga la factura y construye su documento.
func (s *DocumentService) BuildUnsigned(ctx context.Context, invoiceID, purpose string) (*UnsignedDocument, error) {
	inv, items, company, err := s.Load(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return s.Build(inv, items, company, purpose)
}

// Build construye el documento a partir de datos ya cargados.
func (s *DocumentService) Build(inv *entity.Invoice, items []*entity.InvoiceItem, company *entity.Company, purpose string) (*UnsignedDocument, error) {
	doc, err := s.builder.Build(teif.BuildInput{Invoice: inv, Items: items, Company: company, Purpose: purpose})
	if err != nil {
		return nil, fmt.Errorf("documento: construir TEIF: %w", err)
	}
	out := &UnsignedDocument{
		Invoice: inv,
		Company: company,
		Items:   items,
		Purpose: purpose,
		XML:     doc.XML,
		Size:    teif.SizeResult{XML: doc.XML, OriginalSize: len(doc.XML), FinalSize: len(doc.XML)},
	}
	if purpose != teif.PurposeTTN {
		return out, nil
	}

	if problems := teif.ValidateMinimum(doc.XML); len(problems) > 0 {
		return nil, domain.NewValidationError(domain.ErrTEIFInvalid, problems)
	}
	sized, err := teif.EnforceMaxSize(doc.XML, s.maxBytes)
	if err != nil {
		return nil, err
	}
	if sized.Trimmed {
		s.log.Info().Str("invoice_id", inv.ID).
			Int("original_size", sized.OriginalSize).Int("final_size", sized.FinalSize).
			Msg("documento TEIF reducido para respetar el tamaño máximo")
	}
	out.XML = sized.XML
	out.Size = sized
	return out, nil
}
