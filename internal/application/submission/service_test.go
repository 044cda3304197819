package submission_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturetn-api/internal/application/dto"
	"github.com/jhoicas/facturetn-api/internal/domain"
	"github.com/jhoicas/facturetn-api/internal/domain/entity"
	"github.com/jhoicas/facturetn-api/internal/infrastructure/events"
	"github.com/jhoicas/facturetn-api/internal/infrastructure/teif"
	"github.com/jhoicas/facturetn-api/internal/infrastructure/ttn"
)

// ──────────────────────────────────────────────────────────────────────────────
// Submit
// ──────────────────────────────────────────────────────────────────────────────

func TestSubmit_EnviaSinFirmaYGuardaIdSaveEfact(t *testing.T) {
	e := newEnv()
	e.queue.entries["inv-1"] = &entity.QueueEntry{InvoiceID: "inv-1", Status: entity.QueueScheduled}

	out, err := e.service().Submit(context.Background(), actor, "inv-1", dto.SubmitRequest{})
	require.NoError(t, err)

	assert.True(t, out.OK)
	assert.Equal(t, "EF-001", out.IDSaveEfact)
	assert.False(t, out.Signed)
	assert.Equal(t, entity.TTNStatusSubmitted, out.TTNStatus)
	assert.Equal(t, []string{teif.PurposeTTN}, e.docs.purposes)
	require.Len(t, e.ttn.sent, 1)
	assert.Equal(t, unsignedXML, string(e.ttn.sent[0]))
	assert.Equal(t, ttn.Credentials{Login: "user", Password: "secret", Matricule: "1234567A"}, e.ttn.creds[0])

	inv := e.invoices.get("inv-1")
	assert.Equal(t, entity.TTNStatusSubmitted, inv.TTNStatus)
	assert.Equal(t, "EF-001", inv.TTNSaveID)
	require.NotNil(t, inv.TTNSubmittedAt)
	assert.Nil(t, inv.TTNScheduledAt)
	assert.Equal(t, entity.QueueCanceled, e.queue.entries["inv-1"].Status, "el envío inmediato cancela la programación")
	assert.Equal(t, []string{events.InvoiceTTNSubmitted}, e.events.types())
}

func TestSubmit_PrefiereElXMLFirmadoDelLibro(t *testing.T) {
	e := newEnv()
	e.signatures.entries["sig-x"] = &entity.SignatureEntry{ID: "sig-x", InvoiceID: "inv-1",
		Provider: entity.ProviderUSBAgent, State: entity.SignatureStateSigned, SignedXML: signedXML}

	out, err := e.service().Submit(context.Background(), actor, "inv-1", dto.SubmitRequest{})
	require.NoError(t, err)
	assert.True(t, out.Signed)
	assert.Equal(t, signedXML, string(e.ttn.sent[0]))
	assert.Empty(t, e.dss.cfgs, "con firma en el libro no se llama a DSS")
}

func TestSubmit_RechazosPrevios(t *testing.T) {
	cases := []struct {
		name  string
		setup func(e *env)
		want  *domain.Error
	}{
		{"devis", func(e *env) { e.invoices.invoices["inv-1"].DocumentType = entity.DocumentTypeQuote }, domain.ErrDevisNotSendable},
		{"divisa", func(e *env) { e.invoices.invoices["inv-1"].Currency = "EUR" }, domain.ErrCurrencyNotAllowed},
		{"sin matricule", func(e *env) { e.credential().WSMatricule = "" }, domain.ErrTTNConfigMissing},
		{"sin credencial", func(e *env) { delete(e.credentials.creds, "c1|production") }, domain.ErrTTNConfigMissing},
		{"ya enviada", func(e *env) { e.invoices.invoices["inv-1"].TTNStatus = entity.TTNStatusSubmitted }, domain.ErrInvoiceLockedTTN},
		{"aceptada", func(e *env) { e.invoices.invoices["inv-1"].TTNStatus = entity.TTNStatusAccepted }, domain.ErrInvoiceLockedTTN},
		{"firma obligatoria", func(e *env) { e.credential().RequireSignature = true }, domain.ErrSignatureRequired},
		{"sin permiso", func(e *env) { e.checker.deny[entity.ActionSubmitTTN] = true }, domain.ErrForbidden},
		{"inexistente", func(e *env) { delete(e.invoices.invoices, "inv-1") }, domain.ErrInvoiceNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv()
			tc.setup(e)
			_, err := e.service().Submit(context.Background(), actor, "inv-1", dto.SubmitRequest{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			assert.Empty(t, e.ttn.sent)
			assert.Empty(t, e.events.events)
		})
	}
}

func TestSubmit_DocumentoInvalido(t *testing.T) {
	e := newEnv()
	e.docs.err = domain.NewValidationError(domain.ErrTEIFInvalid, []string{"falta Bgm"})

	_, err := e.service().Submit(context.Background(), actor, "inv-1", dto.SubmitRequest{})
	assert.ErrorIs(t, err, domain.ErrTEIFInvalid)
	assert.Equal(t, entity.TTNStatusNotSent, e.invoices.get("inv-1").TTNStatus)
}

func TestSubmit_EntornoInvalido(t *testing.T) {
	e := newEnv()
	_, err := e.service().Submit(context.Background(), actor, "inv-1", dto.SubmitRequest{Environment: "staging"})
	assert.ErrorIs(t, err, domain.ErrInvalidEnvironment)
}

func TestSubmit_FirmaDSSQuedaEnElLibro(t *testing.T) {
	e := newEnv()
	e.credential().SignatureProvider = string(entity.ProviderDSS)
	e.credential().SignatureConfig.DSS = &entity.DSSConfig{URL: "https://dss.empresa.test", Profile: "XAdES-BES"}

	out, err := e.service().Submit(context.Background(), actor, "inv-1", dto.SubmitRequest{})
	require.NoError(t, err)
	assert.True(t, out.Signed)
	assert.Equal(t, signedXML, string(e.ttn.sent[0]))
	require.Len(t, e.dss.cfgs, 1)
	assert.Equal(t, "https://dss.empresa.test", e.dss.cfgs[0].URL, "la configuración de la empresa prevalece")

	entry, _ := e.signatures.Get(context.Background(), "inv-1", entity.ProviderDSS)
	require.NotNil(t, entry)
	assert.True(t, entry.IsSigned())
	assert.Equal(t, signedXML, entry.SignedXML)
	assert.NotEmpty(t, entry.Meta[entity.MetaState])
	assert.Equal(t, entity.SignatureStatusSigned, e.invoices.get("inv-1").SignatureStatus)
	assert.Equal(t, []string{events.InvoiceSigned, events.InvoiceTTNSubmitted}, e.events.types())
}

func TestSubmit_DSSUsaElFirmanteGlobal(t *testing.T) {
	e := newEnv()
	e.credential().SignatureProvider = string(entity.ProviderDSS)

	_, err := e.service().Submit(context.Background(), actor, "inv-1", dto.SubmitRequest{})
	require.NoError(t, err)
	require.Len(t, e.dss.cfgs, 1)
	assert.Equal(t, "https://dss.global.test", e.dss.cfgs[0].URL)
}

func TestSubmit_FalloDSSNoObligatorioEnviaSinFirma(t *testing.T) {
	e := newEnv()
	e.credential().SignatureProvider = string(entity.ProviderDSS)
	e.dss.err = domain.NewUpstreamError(domain.ErrDSSSignatureFailed, 502, "caído")

	out, err := e.service().Submit(context.Background(), actor, "inv-1", dto.SubmitRequest{})
	require.NoError(t, err)
	assert.False(t, out.Signed)
	assert.Equal(t, unsignedXML, string(e.ttn.sent[0]))
	assert.Empty(t, e.signatures.entries)
}

func TestSubmit_FalloDSSObligatorio(t *testing.T) {
	e := newEnv()
	e.credential().SignatureProvider = string(entity.ProviderDSS)
	e.credential().RequireSignature = true
	e.dss.err = domain.NewUpstreamError(domain.ErrDSSSignatureFailed, 502, "caído")

	_, err := e.service().Submit(context.Background(), actor, "inv-1", dto.SubmitRequest{})
	assert.ErrorIs(t, err, domain.ErrDSSSignatureFailed)
	assert.Empty(t, e.ttn.sent)
	assert.Equal(t, entity.TTNStatusNotSent, e.invoices.get("inv-1").TTNStatus)
}

func TestSubmit_ErrorRemotoDejaLaFacturaEnError(t *testing.T) {
	e := newEnv()
	e.ttn.saveErr = domain.NewUpstreamError(domain.ErrTTNUpstream, 500, "Matricule inconnu")

	_, err := e.service().Submit(context.Background(), actor, "inv-1", dto.SubmitRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTTNUpstream)
	var up *domain.UpstreamError
	require.True(t, errors.As(err, &up))
	assert.Equal(t, 500, up.Status)

	inv := e.invoices.get("inv-1")
	assert.Equal(t, entity.TTNStatusError, inv.TTNStatus)
	assert.Contains(t, inv.TTNLastError, "Matricule inconnu")
	assert.Equal(t, []string{events.InvoiceTTNError}, e.events.types())

	// una factura en error se puede reenviar
	e.ttn.saveErr = nil
	out, err := e.service().Submit(context.Background(), actor, "inv-1", dto.SubmitRequest{})
	require.NoError(t, err)
	assert.Equal(t, "EF-001", out.IDSaveEfact)
	assert.Empty(t, e.invoices.get("inv-1").TTNLastError)
}

func TestSubmit_ErrorRemotoLargoSeRecortaSinRomperUTF8(t *testing.T) {
	e := newEnv()
	e.ttn.saveErr = domain.NewUpstreamError(domain.ErrTTNUpstream, 500, strings.Repeat("é", 3000))

	_, err := e.service().Submit(context.Background(), actor, "inv-1", dto.SubmitRequest{})
	require.Error(t, err)

	inv := e.invoices.get("inv-1")
	assert.Equal(t, entity.TTNStatusError, inv.TTNStatus)
	assert.LessOrEqual(t, len(inv.TTNLastError), 4000)
	assert.True(t, utf8.ValidString(inv.TTNLastError), "ttn_last_error debe ser UTF-8 válido")
	assert.True(t, strings.HasSuffix(inv.TTNLastError, "é"))
}

func TestSubmit_FalloAlRegistrarElErrorSeDevuelve(t *testing.T) {
	e := newEnv()
	e.ttn.saveErr = domain.NewUpstreamError(domain.ErrTTNUpstream, 500, "Matricule inconnu")
	e.invoices.updateErr = func(inv *entity.Invoice) error {
		if inv.TTNStatus == entity.TTNStatusError {
			return errors.New("invalid byte sequence for encoding UTF8")
		}
		return nil
	}

	_, err := e.service().Submit(context.Background(), actor, "inv-1", dto.SubmitRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTTNUpstream)
	assert.Contains(t, err.Error(), "registrar estado error")
	assert.Contains(t, err.Error(), "invalid byte sequence")
	assert.Empty(t, e.events.types(), "sin estado registrado no se publica el error")
}

// ──────────────────────────────────────────────────────────────────────────────
// Schedule / Cancel
// ──────────────────────────────────────────────────────────────────────────────

func TestSchedule_SinFechaUsaElRetrasoConfigurado(t *testing.T) {
	e := newEnv()

	out, err := e.service().Schedule(context.Background(), actor, "inv-1", dto.ScheduleRequest{})
	require.NoError(t, err)
	want := e.now.Add(10 * time.Minute)
	assert.Equal(t, want, out.ScheduledAt)
	assert.Equal(t, entity.TTNStatusScheduled, out.TTNStatus)

	q := e.queue.entries["inv-1"]
	require.NotNil(t, q)
	assert.Equal(t, entity.QueueScheduled, q.Status)
	assert.Equal(t, want, q.ScheduledAt)
	assert.Equal(t, entity.EnvironmentProduction, q.Environment)

	inv := e.invoices.get("inv-1")
	assert.Equal(t, entity.TTNStatusScheduled, inv.TTNStatus)
	require.NotNil(t, inv.TTNScheduledAt)
	assert.Equal(t, want, *inv.TTNScheduledAt)
	assert.Equal(t, []string{events.InvoiceTTNScheduled}, e.events.types())
}

func TestSchedule_ReprogramarReemplazaLaFecha(t *testing.T) {
	e := newEnv()
	svc := e.service()
	_, err := svc.Schedule(context.Background(), actor, "inv-1", dto.ScheduleRequest{})
	require.NoError(t, err)

	later := e.now.Add(2 * time.Hour)
	out, err := svc.Schedule(context.Background(), actor, "inv-1", dto.ScheduleRequest{ScheduledAt: &later})
	require.NoError(t, err)
	assert.Equal(t, later, out.ScheduledAt)
	assert.Len(t, e.queue.entries, 1)
	assert.Equal(t, later, e.queue.entries["inv-1"].ScheduledAt)
}

func TestSchedule_Rechazos(t *testing.T) {
	past := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		setup func(e *env)
		req   dto.ScheduleRequest
		want  *domain.Error
	}{
		{"fecha pasada", func(*env) {}, dto.ScheduleRequest{ScheduledAt: &past}, domain.ErrScheduleInPast},
		{"validación exigida", func(e *env) { e.companies.companies["c1"].ValidationRequired = true }, dto.ScheduleRequest{}, domain.ErrValidationRequired},
		{"ya enviada", func(e *env) { e.invoices.invoices["inv-1"].TTNStatus = entity.TTNStatusSubmitted }, dto.ScheduleRequest{}, domain.ErrInvoiceLockedTTN},
		{"devis", func(e *env) { e.invoices.invoices["inv-1"].DocumentType = entity.DocumentTypeQuote }, dto.ScheduleRequest{}, domain.ErrDevisNotSendable},
		{"sin permiso", func(e *env) { e.checker.deny[entity.ActionSubmitTTN] = true }, dto.ScheduleRequest{}, domain.ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv()
			tc.setup(e)
			_, err := e.service().Schedule(context.Background(), actor, "inv-1", tc.req)
			assert.ErrorIs(t, err, tc.want)
			assert.Empty(t, e.queue.entries)
		})
	}
}

func TestSchedule_ValidadaPorElContable(t *testing.T) {
	e := newEnv()
	e.companies.companies["c1"].ValidationRequired = true
	e.invoices.invoices["inv-1"].Status = entity.InvoiceStatusValidated

	_, err := e.service().Schedule(context.Background(), actor, "inv-1", dto.ScheduleRequest{})
	assert.NoError(t, err)
}

func TestCancel_SoloUnEnvioProgramado(t *testing.T) {
	e := newEnv()
	_, err := e.service().Cancel(context.Background(), actor, "inv-1")
	assert.ErrorIs(t, err, domain.ErrNotScheduled)
}

func TestCancel_VuelveANoEnviada(t *testing.T) {
	e := newEnv()
	svc := e.service()
	_, err := svc.Schedule(context.Background(), actor, "inv-1", dto.ScheduleRequest{})
	require.NoError(t, err)

	out, err := svc.Cancel(context.Background(), actor, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Canceled)
	assert.Equal(t, entity.TTNStatusNotSent, out.TTNStatus)
	assert.Equal(t, entity.QueueCanceled, e.queue.entries["inv-1"].Status)
	assert.Nil(t, e.invoices.get("inv-1").TTNScheduledAt)
	assert.Equal(t, []string{events.InvoiceTTNScheduled, events.InvoiceTTNCanceled}, e.events.types())
}

// ──────────────────────────────────────────────────────────────────────────────
// Status
// ──────────────────────────────────────────────────────────────────────────────

func TestStatus_SinWebservice(t *testing.T) {
	e := newEnv()
	e.credential().WSPassword = ""

	out, err := e.service().Status(context.Background(), actor, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "no_webservice", out.Mode)
	assert.Empty(t, e.ttn.crit)
}

func TestStatus_SinReferencia(t *testing.T) {
	e := newEnv()
	_, err := e.service().Status(context.Background(), actor, "inv-1")
	assert.ErrorIs(t, err, domain.ErrTTNReferenceMissing)
}

func TestStatus_AceptadaFijaFechaDeValidacion(t *testing.T) {
	e := newEnv()
	inv := e.invoices.invoices["inv-1"]
	inv.TTNStatus, inv.TTNSaveID, inv.TTNLastError = entity.TTNStatusSubmitted, "EF-001", "antiguo"
	e.ttn.consult = &ttn.ConsultResult{OK: true, Etat: "ACCEPTEE", GeneratedRef: "TTN-REF-9", Mapped: entity.TTNStatusAccepted}

	out, err := e.service().Status(context.Background(), actor, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, entity.TTNStatusAccepted, out.TTNStatus)
	assert.Equal(t, "TTN-REF-9", out.GeneratedRef)
	assert.Equal(t, []ttn.Criteria{{IDSaveEfact: "EF-001"}}, e.ttn.crit)

	got := e.invoices.get("inv-1")
	assert.Equal(t, entity.TTNStatusAccepted, got.TTNStatus)
	assert.Equal(t, "TTN-REF-9", got.TTNGeneratedRef)
	require.NotNil(t, got.TTNValidatedAt)
	assert.Equal(t, e.now, *got.TTNValidatedAt)
	assert.Empty(t, got.TTNLastError)
	assert.Equal(t, []string{events.InvoiceTTNStatus}, e.events.types())
}

func TestStatus_RechazadaGuardaElMotivo(t *testing.T) {
	e := newEnv()
	inv := e.invoices.invoices["inv-1"]
	inv.TTNStatus, inv.TTNSaveID = entity.TTNStatusSubmitted, "EF-001"
	e.ttn.consult = &ttn.ConsultResult{OK: true, Etat: "REJETEE", Message: "Montant incohérent", Mapped: entity.TTNStatusRejected}

	out, err := e.service().Status(context.Background(), actor, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, entity.TTNStatusRejected, out.TTNStatus)

	got := e.invoices.get("inv-1")
	assert.Equal(t, "Montant incohérent", got.TTNLastError)
	assert.Nil(t, got.TTNValidatedAt)
}
