package billing_test

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturetn-api/internal/domain"
	"github.com/jhoicas/facturetn-api/internal/domain/entity"
	"github.com/jhoicas/facturetn-api/internal/domain/repository"
)

// ──────────────────────────────────────────────────────────────────────────────
// Fakes en memoria de los puertos de repositorio
// ──────────────────────────────────────────────────────────────────────────────

type fakeInvoices struct {
	invoices map[string]*entity.Invoice
	items    map[string][]*entity.InvoiceItem
	deleted  []string
}

func (f *fakeInvoices) GetByID(_ context.Context, id string) (*entity.Invoice, error) {
	inv, ok := f.invoices[id]
	if !ok {
		return nil, nil
	}
	cp := *inv
	return &cp, nil
}

func (f *fakeInvoices) GetForUpdate(ctx context.Context, id string) (*entity.Invoice, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeInvoices) GetItems(_ context.Context, invoiceID string) ([]*entity.InvoiceItem, error) {
	return f.items[invoiceID], nil
}

func (f *fakeInvoices) SetSignatureStatus(_ context.Context, id, status string) error {
	f.invoices[id].SignatureStatus = status
	return nil
}

func (f *fakeInvoices) UpdateTTN(_ context.Context, inv *entity.Invoice) error {
	cp := *inv
	f.invoices[inv.ID] = &cp
	return nil
}

func (f *fakeInvoices) UpdateDeclaration(ctx context.Context, inv *entity.Invoice) error {
	return f.UpdateTTN(ctx, inv)
}

func (f *fakeInvoices) MarkValidated(_ context.Context, id string, at time.Time) error {
	f.invoices[id].Status = entity.InvoiceStatusValidated
	f.invoices[id].ValidatedAt = &at
	return nil
}

func (f *fakeInvoices) Delete(_ context.Context, id string) error {
	delete(f.invoices, id)
	delete(f.items, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeCompanies struct {
	companies map[string]*entity.Company
}

func (f *fakeCompanies) GetByID(_ context.Context, id string) (*entity.Company, error) {
	return f.companies[id], nil
}

// fakeSignatures solo implementa lo que usa billing.
type fakeSignatures struct {
	repository.SignatureRepository
	latest map[string]*entity.SignatureEntry
}

func (f *fakeSignatures) Latest(_ context.Context, invoiceID string) (*entity.SignatureEntry, error) {
	return f.latest[invoiceID], nil
}

type fakeCredentials struct {
	creds map[string]*entity.Credential // clave company|env
	saved *entity.Credential
}

func (f *fakeCredentials) Get(_ context.Context, companyID, environment string) (*entity.Credential, error) {
	c, ok := f.creds[companyID+"|"+environment]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCredentials) Upsert(_ context.Context, c *entity.Credential) error {
	cp := *c
	f.creds[c.CompanyID+"|"+c.Environment] = &cp
	f.saved = &cp
	return nil
}

func (f *fakeCredentials) SetSignatureStatus(_ context.Context, companyID, environment, status string) error {
	if c, ok := f.creds[companyID+"|"+environment]; ok {
		c.SignatureStatus = status
	}
	return nil
}

type fakeTx struct {
	repos repository.Repositories
}

func (f *fakeTx) Run(_ context.Context, fn func(r repository.Repositories) error) error {
	return fn(f.repos)
}

func (f *fakeTx) RunInvoice(ctx context.Context, invoiceID string, fn func(inv *entity.Invoice, r repository.Repositories) error) error {
	inv, err := f.repos.Invoices.GetForUpdate(ctx, invoiceID)
	if err != nil {
		return err
	}
	if inv == nil {
		return domain.ErrInvoiceNotFound
	}
	return fn(inv, f.repos)
}

// fakeChecker permite todo salvo las acciones denegadas.
type fakeChecker struct {
	deny map[string]bool
}

func (f *fakeChecker) Can(_ context.Context, _, _, action string) (bool, error) {
	return !f.deny[action], nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Datos de prueba
// ──────────────────────────────────────────────────────────────────────────────

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type env struct {
	invoices    *fakeInvoices
	companies   *fakeCompanies
	signatures  *fakeSignatures
	credentials *fakeCredentials
	tx          *fakeTx
	checker     *fakeChecker
}

func newEnv() *env {
	issued := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	e := &env{
		invoices: &fakeInvoices{
			invoices: map[string]*entity.Invoice{
				"inv-1": {
					ID: "inv-1", CompanyID: "c1", DocumentType: entity.DocumentTypeInvoice,
					InvoiceNumber: "F-2026-0001", IssueDate: &issued, Currency: "TND",
					CustomerName: "Client SARL", CustomerTaxID: "1234567A", CustomerAddress: "Rue de Carthage",
					SubtotalHT: d("180.000"), TotalVAT: d("34.200"), TotalTTC: d("214.200"),
					Status: entity.InvoiceStatusDraft, SignatureStatus: entity.SignatureStatusNone,
					TTNStatus: entity.TTNStatusDraft,
				},
			},
			items: map[string][]*entity.InvoiceItem{
				"inv-1": {{
					ID: "it-1", InvoiceID: "inv-1", LineNo: 1, Description: "Prestation",
					Quantity: d("2"), UnitPrice: d("100.000"), DiscountPct: d("10"), VATPct: d("19"),
					LineTotalHT: d("180.000"), LineVAT: d("34.200"), LineTotalTTC: d("214.200"),
				}},
			},
		},
		companies: &fakeCompanies{companies: map[string]*entity.Company{
			"c1": {ID: "c1", Name: "Société Test", TaxID: "7654321B", Address: "Avenue Habib Bourguiba"},
		}},
		signatures:  &fakeSignatures{latest: map[string]*entity.SignatureEntry{}},
		credentials: &fakeCredentials{creds: map[string]*entity.Credential{}},
		checker:     &fakeChecker{deny: map[string]bool{}},
	}
	e.tx = &fakeTx{repos: repository.Repositories{
		Invoices:    e.invoices,
		Signatures:  e.signatures,
		Credentials: e.credentials,
	}}
	return e
}
