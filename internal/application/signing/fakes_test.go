package signing_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/jhoicas/facturetn-api/internal/application/billing"
	"github.com/jhoicas/facturetn-api/internal/domain"
	"github.com/jhoicas/facturetn-api/internal/domain/entity"
	"github.com/jhoicas/facturetn-api/internal/domain/repository"
	"github.com/jhoicas/facturetn-api/internal/infrastructure/events"
)

// ──────────────────────────────────────────────────────────────────────────────
// Fakes en memoria
// ──────────────────────────────────────────────────────────────────────────────

type fakeInvoices struct {
	repository.InvoiceRepository
	invoices map[string]*entity.Invoice
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

func (f *fakeInvoices) SetSignatureStatus(_ context.Context, id, status string) error {
	if inv, ok := f.invoices[id]; ok {
		inv.SignatureStatus = status
	}
	return nil
}

type fakeSignatures struct {
	mu      sync.Mutex
	entries map[string]*entity.SignatureEntry
	seq     int
	writes  int
}

func (f *fakeSignatures) find(invoiceID string, p entity.SignatureProvider) *entity.SignatureEntry {
	for _, e := range f.entries {
		if e.InvoiceID == invoiceID && e.Provider == p {
			return e
		}
	}
	return nil
}

func clone(e *entity.SignatureEntry) *entity.SignatureEntry {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Meta = map[string]string{}
	for k, v := range e.Meta {
		cp.Meta[k] = v
	}
	return &cp
}

func (f *fakeSignatures) Get(_ context.Context, invoiceID string, p entity.SignatureProvider) (*entity.SignatureEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return clone(f.find(invoiceID, p)), nil
}

func (f *fakeSignatures) GetByID(_ context.Context, id string) (*entity.SignatureEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return clone(f.entries[id]), nil
}

func (f *fakeSignatures) Latest(_ context.Context, invoiceID string) (*entity.SignatureEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []*entity.SignatureEntry
	for _, e := range f.entries {
		if e.InvoiceID == invoiceID {
			list = append(list, e)
		}
	}
	if len(list) == 0 {
		return nil, nil
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].IsSigned() != list[j].IsSigned() {
			return list[i].IsSigned()
		}
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})
	return clone(list[0]), nil
}

func (f *fakeSignatures) UpsertPending(_ context.Context, e *entity.SignatureEntry) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur := f.find(e.InvoiceID, e.Provider)
	if cur != nil && cur.IsSigned() {
		return false, nil
	}
	f.seq++
	if cur == nil {
		cur = &entity.SignatureEntry{ID: fmt.Sprintf("sig-%d", f.seq), CreatedAt: time.Unix(int64(f.seq), 0)}
		f.entries[cur.ID] = cur
	}
	id, created := cur.ID, cur.CreatedAt
	*cur = *clone(e)
	cur.ID, cur.CreatedAt, cur.UpdatedAt = id, created, time.Unix(int64(f.seq), 0)
	cur.State = entity.SignatureStatePending
	e.ID, e.State, e.CreatedAt, e.UpdatedAt = cur.ID, cur.State, cur.CreatedAt, cur.UpdatedAt
	f.writes++
	return true, nil
}

func (f *fakeSignatures) Complete(_ context.Context, id, signedXML string, proof entity.SignatureProof, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.entries[id]
	if e == nil || e.IsSigned() {
		return false, nil
	}
	e.State, e.SignedXML, e.SignedAt = entity.SignatureStateSigned, signedXML, &at
	e.CertSubject, e.CertSerial, e.JTI, e.SAD = proof.CertSubject, proof.CertSerial, proof.JTI, proof.SAD
	for k, v := range proof.Meta {
		e.Meta[k] = v
	}
	f.seq++
	e.UpdatedAt = time.Unix(int64(f.seq), 0)
	f.writes++
	return true, nil
}

type fakeTokens struct {
	mu    sync.Mutex
	pair  map[string]*entity.PairToken
	sign  map[string]*entity.SignToken
	views map[string]bool
}

func (f *fakeTokens) CreatePairToken(_ context.Context, t *entity.PairToken) error {
	cp := *t
	f.pair[t.Token] = &cp
	return nil
}

func (f *fakeTokens) GetPairToken(_ context.Context, token string) (*entity.PairToken, error) {
	t, ok := f.pair[token]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTokens) ClaimPairToken(_ context.Context, token, companyID, environment string, now time.Time) (*entity.PairToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.pair[token]
	if !ok || t.UsedAt != nil || !now.Before(t.ExpiresAt) || t.CompanyID != companyID || t.Environment != environment {
		return nil, nil
	}
	t.UsedAt = &now
	cp := *t
	return &cp, nil
}

func (f *fakeTokens) CreateSignToken(_ context.Context, t *entity.SignToken) error {
	cp := *t
	f.sign[t.Token] = &cp
	return nil
}

func (f *fakeTokens) GetSignToken(_ context.Context, token string) (*entity.SignToken, error) {
	t, ok := f.sign[token]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTokens) ClaimSignToken(_ context.Context, token string, scope repository.SignTokenScope, now time.Time) (*entity.SignToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.sign[token]
	if !ok || t.UsedAt != nil || !now.Before(t.ExpiresAt) {
		return nil, nil
	}
	if (scope.InvoiceID != "" && scope.InvoiceID != t.InvoiceID) || (scope.Environment != "" && scope.Environment != t.Environment) {
		return nil, nil
	}
	t.UsedAt = &now
	cp := *t
	return &cp, nil
}

func (f *fakeTokens) RecordView(_ context.Context, v *entity.InvoiceView) error {
	f.views[v.InvoiceID+"|"+v.ViewedBy] = true
	return nil
}

func (f *fakeTokens) HasViewed(_ context.Context, invoiceID, userID string) (bool, error) {
	return f.views[invoiceID+"|"+userID], nil
}

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]*entity.RemoteSession
	order    map[string]int
	seq      int
}

// Create conserva el CreatedAt del llamador, como el repositorio real.
func (f *fakeSessions) Create(_ context.Context, s *entity.RemoteSession) error {
	f.seq++
	s.ID = fmt.Sprintf("sess-%d", f.seq)
	if f.order == nil {
		f.order = map[string]int{}
	}
	f.order[s.ID] = f.seq
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeSessions) newer(a, b *entity.RemoteSession) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return f.order[a.ID] > f.order[b.ID]
}

func (f *fakeSessions) GetByState(_ context.Context, state string) (*entity.RemoteSession, error) {
	for _, s := range f.sessions {
		if s.State == state {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeSessions) latest(match func(*entity.RemoteSession) bool) *entity.RemoteSession {
	var best *entity.RemoteSession
	for _, s := range f.sessions {
		if match(s) && (best == nil || f.newer(s, best)) {
			best = s
		}
	}
	if best == nil {
		return nil
	}
	cp := *best
	return &cp
}

func (f *fakeSessions) LatestOpen(_ context.Context, now time.Time) (*entity.RemoteSession, error) {
	return f.latest(func(s *entity.RemoteSession) bool { return s.IsOpen(now) }), nil
}

func (f *fakeSessions) LatestForInvoice(_ context.Context, invoiceID string) (*entity.RemoteSession, error) {
	return f.latest(func(s *entity.RemoteSession) bool { return s.InvoiceID == invoiceID }), nil
}

func (f *fakeSessions) BindJTI(_ context.Context, id, jti string, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sessions[id]
	if s == nil || s.JTI != "" || s.Status != entity.RemoteSessionPending {
		return false, nil
	}
	s.JTI, s.Status = jti, entity.RemoteSessionDone
	return true, nil
}

func (f *fakeSessions) UpdateStatus(_ context.Context, id, status, msg string) error {
	if s := f.sessions[id]; s != nil {
		s.Status, s.ErrorMessage = status, msg
	}
	return nil
}

type fakeCredentials struct {
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

func (f *fakeCredentials) Upsert(_ context.Context, c *entity.Credential) error {
	cp := *c
	f.creds[c.CompanyID+"|"+c.Environment] = &cp
	return nil
}

func (f *fakeCredentials) SetSignatureStatus(_ context.Context, companyID, env, status string) error {
	c, ok := f.creds[companyID+"|"+env]
	if !ok {
		c = &entity.Credential{CompanyID: companyID, Environment: env}
		f.creds[companyID+"|"+env] = c
	}
	c.SignatureStatus = status
	return nil
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

type fakeChecker struct {
	deny map[string]bool
}

func (f *fakeChecker) Can(_ context.Context, _, _, action string) (bool, error) {
	return !f.deny[action], nil
}

const unsignedXML = `<TEIF controlingAgency="TTN" version="1.8.8"><InvoiceHeader/><InvoiceBody><Bgm/></InvoiceBody></TEIF>`

type fakeDocs struct {
	err error
}

func (f *fakeDocs) BuildUnsigned(_ context.Context, invoiceID, purpose string) (*billing.UnsignedDocument, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &billing.UnsignedDocument{Invoice: &entity.Invoice{ID: invoiceID}, Purpose: purpose, XML: []byte(unsignedXML)}, nil
}

type fakeSigner struct {
	sad, signature      string
	exchangeErr, sigErr error
	jtis                []string
	signed              []string
}

func (f *fakeSigner) AuthorizeURL(credentialID, hash, state string) string {
	return "https://digigo.test/authorize?credentialId=" + credentialID + "&hash=" + hash + "&state=" + state
}

func (f *fakeSigner) ExchangeToken(_ context.Context, jti string) (string, error) {
	f.jtis = append(f.jtis, jti)
	return f.sad, f.exchangeErr
}

func (f *fakeSigner) SignHash(_ context.Context, _, _, hash string) (string, error) {
	f.signed = append(f.signed, hash)
	return f.signature, f.sigErr
}

type fakeCache struct {
	items map[string]entity.SessionContext
}

func (f *fakeCache) Put(_ context.Context, sc entity.SessionContext, _ time.Duration) error {
	f.items[sc.State] = sc
	return nil
}

func (f *fakeCache) Get(_ context.Context, state string) (*entity.SessionContext, error) {
	sc, ok := f.items[state]
	if !ok {
		return nil, nil
	}
	return &sc, nil
}

type fakePublisher struct {
	events []events.Event
}

func (f *fakePublisher) Publish(_ context.Context, e events.Event) error {
	f.events = append(f.events, e)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

// artifact token de tres partes con el jti dado, como el que devuelve el firmante remoto.
func artifact(jti string) string {
	claims := jwtlib.MapClaims{"sub": "signer"}
	if jti != "" {
		claims["jti"] = jti
	}
	s, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("clave-del-proveedor"))
	if err != nil {
		panic(err)
	}
	return s
}
