package submission_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/facturetn-api/internal/application/access"
	"github.com/jhoicas/facturetn-api/internal/application/billing"
	"github.com/jhoicas/facturetn-api/internal/application/signing"
	"github.com/jhoicas/facturetn-api/internal/application/submission"
	"github.com/jhoicas/facturetn-api/internal/domain"
	"github.com/jhoicas/facturetn-api/internal/domain/entity"
	"github.com/jhoicas/facturetn-api/internal/domain/repository"
	"github.com/jhoicas/facturetn-api/internal/infrastructure/dss"
	"github.com/jhoicas/facturetn-api/internal/infrastructure/events"
	"github.com/jhoicas/facturetn-api/internal/infrastructure/ttn"
)

// ──────────────────────────────────────────────────────────────────────────────
// Fakes en memoria
// ──────────────────────────────────────────────────────────────────────────────

const (
	unsignedXML = `<TEIF controlingAgency="TTN" version="1.8.8"><InvoiceHeader/><InvoiceBody><Bgm/></InvoiceBody></TEIF>`
	signedXML   = `<TEIF controlingAgency="TTN" version="1.8.8"><InvoiceHeader/><InvoiceBody><Bgm/></InvoiceBody><ds:Signature xmlns:ds="http://www.w3.org/2000/09/xmldsig#"/></TEIF>`
)

var actor = access.Actor{UserID: "u1", CompanyID: "c1"}

type fakeInvoices struct {
	repository.InvoiceRepository
	mu        sync.Mutex
	invoices  map[string]*entity.Invoice
	updateErr func(inv *entity.Invoice) error
}

func (f *fakeInvoices) GetByID(_ context.Context, id string) (*entity.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
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

func (f *fakeInvoices) UpdateTTN(_ context.Context, inv *entity.Invoice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		if err := f.updateErr(inv); err != nil {
			return err
		}
	}
	cp := *inv
	f.invoices[inv.ID] = &cp
	return nil
}

func (f *fakeInvoices) SetSignatureStatus(_ context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inv, ok := f.invoices[id]; ok {
		inv.SignatureStatus = status
	}
	return nil
}

func (f *fakeInvoices) get(id string) *entity.Invoice {
	inv, _ := f.GetByID(context.Background(), id)
	return inv
}

type fakeCompanies struct {
	repository.CompanyRepository
	companies map[string]*entity.Company
}

func (f *fakeCompanies) GetByID(_ context.Context, id string) (*entity.Company, error) {
	return f.companies[id], nil
}

type fakeCredentials struct {
	repository.CredentialRepository
	creds map[string]*entity.Credential
}

func (f *fakeCredentials) Get(_ context.Context, companyID, env string) (*entity.Credential, error) {
	c, ok := f.creds[companyID+"|"+env]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

type fakeSignatures struct {
	repository.SignatureRepository
	entries map[string]*entity.SignatureEntry
	seq     int
}

func (f *fakeSignatures) find(invoiceID string, p entity.SignatureProvider) *entity.SignatureEntry {
	for _, e := range f.entries {
		if e.InvoiceID == invoiceID && e.Provider == p {
			return e
		}
	}
	return nil
}

func (f *fakeSignatures) Get(_ context.Context, invoiceID string, p entity.SignatureProvider) (*entity.SignatureEntry, error) {
	if e := f.find(invoiceID, p); e != nil {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeSignatures) GetByID(_ context.Context, id string) (*entity.SignatureEntry, error) {
	if e, ok := f.entries[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeSignatures) Latest(_ context.Context, invoiceID string) (*entity.SignatureEntry, error) {
	var best *entity.SignatureEntry
	for _, e := range f.entries {
		if e.InvoiceID != invoiceID {
			continue
		}
		if best == nil || (e.IsSigned() && !best.IsSigned()) {
			best = e
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (f *fakeSignatures) UpsertPending(_ context.Context, e *entity.SignatureEntry) (bool, error) {
	cur := f.find(e.InvoiceID, e.Provider)
	if cur != nil && cur.IsSigned() {
		return false, nil
	}
	if cur == nil {
		f.seq++
		cur = &entity.SignatureEntry{ID: fmt.Sprintf("sig-%d", f.seq)}
		f.entries[cur.ID] = cur
	}
	id := cur.ID
	*cur = *e
	cur.ID, cur.State = id, entity.SignatureStatePending
	e.ID, e.State = cur.ID, cur.State
	return true, nil
}

func (f *fakeSignatures) Complete(_ context.Context, id, xml string, _ entity.SignatureProof, at time.Time) (bool, error) {
	e := f.entries[id]
	if e == nil || e.IsSigned() {
		return false, nil
	}
	e.State, e.SignedXML, e.SignedAt = entity.SignatureStateSigned, xml, &at
	return true, nil
}

type fakeQueue struct {
	repository.QueueRepository
	entries  map[string]*entity.QueueEntry
	canceled int
}

func (f *fakeQueue) UpsertScheduled(_ context.Context, q *entity.QueueEntry) error {
	cp := *q
	f.entries[q.InvoiceID] = &cp
	return nil
}

func (f *fakeQueue) CancelActive(_ context.Context, invoiceID string, _ time.Time) (int64, error) {
	q, ok := f.entries[invoiceID]
	if !ok || q.Status != entity.QueueScheduled {
		return 0, nil
	}
	q.Status = entity.QueueCanceled
	f.canceled++
	return 1, nil
}

type fakeTx struct {
	repos repository.Repositories
}

func (f *fakeTx) Run(_ context.Context, fn func(r repository.Repositories) error) error {
	return fn(f.repos)
}

func (f *fakeTx) RunInvoice(ctx context.Context, invoiceID string, fn func(inv *entity.Invoice, r repository.Repositories) error) error {
	inv, _ := f.repos.Invoices.GetForUpdate(ctx, invoiceID)
	if inv == nil {
		return domain.ErrInvoiceNotFound
	}
	return fn(inv, f.repos)
}

type fakeDocs struct {
	err      error
	purposes []string
}

func (f *fakeDocs) BuildUnsigned(_ context.Context, invoiceID, purpose string) (*billing.UnsignedDocument, error) {
	f.purposes = append(f.purposes, purpose)
	if f.err != nil {
		return nil, f.err
	}
	return &billing.UnsignedDocument{Invoice: &entity.Invoice{ID: invoiceID}, Purpose: purpose, XML: []byte(unsignedXML)}, nil
}

type fakeTTN struct {
	saveID  string
	saveErr error
	consult *ttn.ConsultResult
	sent    [][]byte
	creds   []ttn.Credentials
	crit    []ttn.Criteria
}

func (f *fakeTTN) SaveEfact(_ context.Context, creds ttn.Credentials, doc []byte) (*ttn.SaveResult, error) {
	f.sent = append(f.sent, doc)
	f.creds = append(f.creds, creds)
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	return &ttn.SaveResult{OK: true, HTTPStatus: 200, IDSaveEfact: f.saveID}, nil
}

func (f *fakeTTN) ConsultEfact(_ context.Context, _ ttn.Credentials, crit ttn.Criteria) (*ttn.ConsultResult, error) {
	f.crit = append(f.crit, crit)
	return f.consult, nil
}

type fakeDSS struct {
	out  string
	err  error
	cfgs []dss.Config
}

func (f *fakeDSS) Sign(_ context.Context, _ []byte, cfg dss.Config) ([]byte, error) {
	f.cfgs = append(f.cfgs, cfg)
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.out), nil
}

type fakeChecker struct {
	deny map[string]bool
}

func (f *fakeChecker) Can(_ context.Context, _, _, action string) (bool, error) {
	return !f.deny[action], nil
}

type fakePublisher struct {
	events []events.Event
}

func (f *fakePublisher) Publish(_ context.Context, e events.Event) error {
	f.events = append(f.events, e)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) types() []string {
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

// ──────────────────────────────────────────────────────────────────────────────
// Entorno de prueba
// ──────────────────────────────────────────────────────────────────────────────

type env struct {
	invoices    *fakeInvoices
	companies   *fakeCompanies
	credentials *fakeCredentials
	signatures  *fakeSignatures
	queue       *fakeQueue
	tx          *fakeTx
	docs        *fakeDocs
	ttn         *fakeTTN
	dss         *fakeDSS
	checker     *fakeChecker
	events      *fakePublisher
	now         time.Time
}

func newEnv() *env {
	e := &env{
		invoices: &fakeInvoices{invoices: map[string]*entity.Invoice{
			"inv-1": {ID: "inv-1", CompanyID: "c1", DocumentType: entity.DocumentTypeInvoice,
				Currency: "TND", TTNStatus: entity.TTNStatusNotSent},
		}},
		companies: &fakeCompanies{companies: map[string]*entity.Company{"c1": {ID: "c1"}}},
		credentials: &fakeCredentials{creds: map[string]*entity.Credential{
			"c1|production": {CompanyID: "c1", Environment: entity.EnvironmentProduction, SignatureProvider: "none",
				WSLogin: "user", WSPassword: "secret", WSMatricule: "1234567A"},
		}},
		signatures: &fakeSignatures{entries: map[string]*entity.SignatureEntry{}},
		queue:      &fakeQueue{entries: map[string]*entity.QueueEntry{}},
		docs:       &fakeDocs{},
		ttn:        &fakeTTN{saveID: "EF-001"},
		dss:        &fakeDSS{out: signedXML},
		checker:    &fakeChecker{deny: map[string]bool{}},
		events:     &fakePublisher{},
		now:        time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	}
	e.tx = &fakeTx{repos: repository.Repositories{
		Invoices:    e.invoices,
		Signatures:  e.signatures,
		Credentials: e.credentials,
		Queue:       e.queue,
	}}
	return e
}

func (e *env) credential() *entity.Credential {
	return e.credentials.creds["c1|production"]
}

func (e *env) service() *submission.Service {
	return submission.NewService(submission.Deps{
		Docs:        e.docs,
		Invoices:    e.invoices,
		Companies:   e.companies,
		Signatures:  e.signatures,
		Credentials: e.credentials,
		Tx:          e.tx,
		Ledger:      signing.NewLedger(e.tx, e.signatures, zerolog.Nop()),
		TTN:         e.ttn,
		DSS:         e.dss,
		Events:      e.events,
		Access:      e.checker,
	}, submission.Config{
		Environment:   entity.EnvironmentProduction,
		ScheduleDelay: 10 * time.Minute,
		DSS:           dss.Config{URL: "https://dss.global.test"},
		Now:           func() time.Time { return e.now },
	}, zerolog.Nop())
}
