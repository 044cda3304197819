package signing_test

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/facturetn-api/internal/application/access"
	"github.com/jhoicas/facturetn-api/internal/application/signing"
	"github.com/jhoicas/facturetn-api/internal/domain/entity"
	"github.com/jhoicas/facturetn-api/internal/domain/repository"
)

var actor = access.Actor{UserID: "u1", CompanyID: "c1"}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

type env struct {
	invoices    *fakeInvoices
	signatures  *fakeSignatures
	tokens      *fakeTokens
	sessions    *fakeSessions
	credentials *fakeCredentials
	tx          *fakeTx
	checker     *fakeChecker
	docs        *fakeDocs
	signer      *fakeSigner
	cache       *fakeCache
	events      *fakePublisher
	clock       *clock
}

func newEnv() *env {
	e := &env{
		invoices: &fakeInvoices{invoices: map[string]*entity.Invoice{
			"inv-1": {ID: "inv-1", CompanyID: "c1", DocumentType: entity.DocumentTypeInvoice,
				SignatureStatus: entity.SignatureStatusNone, TTNStatus: entity.TTNStatusNotSent},
		}},
		signatures:  &fakeSignatures{entries: map[string]*entity.SignatureEntry{}},
		tokens:      &fakeTokens{pair: map[string]*entity.PairToken{}, sign: map[string]*entity.SignToken{}, views: map[string]bool{}},
		sessions:    &fakeSessions{sessions: map[string]*entity.RemoteSession{}},
		credentials: &fakeCredentials{creds: map[string]*entity.Credential{}},
		checker:     &fakeChecker{deny: map[string]bool{}},
		docs:        &fakeDocs{},
		signer:      &fakeSigner{sad: "sad-1", signature: "c2lnbmF0dXJl"},
		cache:       &fakeCache{items: map[string]entity.SessionContext{}},
		events:      &fakePublisher{},
		clock:       &clock{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)},
	}
	e.tx = &fakeTx{repos: repository.Repositories{
		Invoices:    e.invoices,
		Signatures:  e.signatures,
		Tokens:      e.tokens,
		Sessions:    e.sessions,
		Credentials: e.credentials,
	}}
	return e
}

func (e *env) config() signing.Config {
	return signing.Config{
		PublicOrigin:  "https://app.facturetn.test",
		AgentScheme:   "facturetn-agent",
		AgentTokenTTL: 5 * time.Minute,
		SessionTTL:    10 * time.Minute,
		Environment:   entity.EnvironmentProduction,
		Now:           e.clock.Now,
	}
}

func (e *env) ledger() *signing.Ledger {
	return signing.NewLedger(e.tx, e.signatures, zerolog.Nop())
}

func (e *env) remote() *signing.RemoteOrchestrator {
	return signing.NewRemoteOrchestrator(signing.RemoteDeps{
		Docs:        e.docs,
		Invoices:    e.invoices,
		Signatures:  e.signatures,
		Sessions:    e.sessions,
		Credentials: e.credentials,
		Tx:          e.tx,
		Signer:      e.signer,
		Cache:       e.cache,
		Events:      e.events,
		Access:      e.checker,
	}, e.config(), zerolog.Nop())
}

func (e *env) agent() *signing.AgentOrchestrator {
	return signing.NewAgentOrchestrator(signing.AgentDeps{
		Docs:        e.docs,
		Invoices:    e.invoices,
		Tokens:      e.tokens,
		Credentials: e.credentials,
		Tx:          e.tx,
		Events:      e.events,
		Access:      e.checker,
	}, e.config(), zerolog.Nop())
}
