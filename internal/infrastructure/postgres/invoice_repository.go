package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/facturetn-api/internal/domain"
	"github.com/jhoicas/facturetn-api/internal/domain/entity"
	"github.com/jhoicas/facturetn-api/internal/domain/repository"
)

var _ repository.InvoiceRepository = (*InvoiceRepo)(nil)

// InvoiceRepo implementación de InvoiceRepository (usable con pool o tx).
type InvoiceRepo struct {
	q Querier
}

// NewInvoiceRepository construye el adaptador. Pasar pool o tx (Querier).
func NewInvoiceRepository(q Querier) *InvoiceRepo {
	return &InvoiceRepo{q: q}
}

const invoiceColumns = `
	id, company_id, document_type, COALESCE(invoice_number, ''), issue_date, due_date, COALESCE(currency, ''),
	COALESCE(customer_name, ''), COALESCE(customer_tax_id, ''), COALESCE(customer_address, ''),
	COALESCE(customer_city, ''), COALESCE(customer_postal_code, ''), COALESCE(customer_country, ''),
	COALESCE(notes, ''),
	subtotal_ht, total_vat, stamp_enabled, stamp_amount, total_ttc,
	status, validated_at, signature_status,
	COALESCE(ttn_status, ''), COALESCE(ttn_save_id, ''), COALESCE(ttn_generated_ref, ''), COALESCE(ttn_last_error, ''),
	ttn_scheduled_at, ttn_submitted_at, ttn_validated_at,
	COALESCE(declaration_status, 'none'), COALESCE(declaration_ref, ''), COALESCE(declaration_note, ''), declared_at,
	created_at, updated_at`

func scanInvoice(row pgx.Row) (*entity.Invoice, error) {
	var inv entity.Invoice
	err := row.Scan(
		&inv.ID, &inv.CompanyID, &inv.DocumentType, &inv.InvoiceNumber, &inv.IssueDate, &inv.DueDate, &inv.Currency,
		&inv.CustomerName, &inv.CustomerTaxID, &inv.CustomerAddress,
		&inv.CustomerCity, &inv.CustomerPostalCode, &inv.CustomerCountry,
		&inv.Notes,
		&inv.SubtotalHT, &inv.TotalVAT, &inv.StampEnabled, &inv.StampAmount, &inv.TotalTTC,
		&inv.Status, &inv.ValidatedAt, &inv.SignatureStatus,
		&inv.TTNStatus, &inv.TTNSaveID, &inv.TTNGeneratedRef, &inv.TTNLastError,
		&inv.TTNScheduledAt, &inv.TTNSubmittedAt, &inv.TTNValidatedAt,
		&inv.DeclarationStatus, &inv.DeclarationRef, &inv.DeclarationNote, &inv.DeclaredAt,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// GetByID obtiene una factura por ID.
func (r *InvoiceRepo) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	inv, err := scanInvoice(r.q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return inv, nil
}

// GetForUpdate igual que GetByID con la fila bloqueada hasta el fin de la transacción.
func (r *InvoiceRepo) GetForUpdate(ctx context.Context, id string) (*entity.Invoice, error) {
	inv, err := scanInvoice(r.q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock invoice: %w", err)
	}
	return inv, nil
}

// GetItems obtiene las líneas ordenadas por número de línea.
func (r *InvoiceRepo) GetItems(ctx context.Context, invoiceID string) ([]*entity.InvoiceItem, error) {
	const query = `
		SELECT id, invoice_id, line_no, COALESCE(description, ''), quantity, unit_price,
		       discount_pct, vat_pct, line_total_ht, line_vat, line_total_ttc
		FROM invoice_items WHERE invoice_id = $1 ORDER BY line_no, id`
	rows, err := r.q.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list invoice items: %w", err)
	}
	defer rows.Close()
	var list []*entity.InvoiceItem
	for rows.Next() {
		var it entity.InvoiceItem
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.LineNo, &it.Description, &it.Quantity, &it.UnitPrice,
			&it.DiscountPct, &it.VATPct, &it.LineTotalHT, &it.LineVAT, &it.LineTotalTTC); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		list = append(list, &it)
	}
	return list, rows.Err()
}

// SetSignatureStatus actualiza invoices.signature_status.
func (r *InvoiceRepo) SetSignatureStatus(ctx context.Context, id, status string) error {
	_, err := r.q.Exec(ctx, `UPDATE invoices SET signature_status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update signature status: %w", err)
	}
	return nil
}

// UpdateTTN persiste todos los campos TTN de la factura.
func (r *InvoiceRepo) UpdateTTN(ctx context.Context, inv *entity.Invoice) error {
	const query = `
		UPDATE invoices
		SET ttn_status        = $2,
		    ttn_save_id       = $3,
		    ttn_generated_ref = $4,
		    ttn_last_error    = $5,
		    ttn_scheduled_at  = $6,
		    ttn_submitted_at  = $7,
		    ttn_validated_at  = $8,
		    updated_at        = now()
		WHERE id = $1`
	_, err := r.q.Exec(ctx, query,
		inv.ID, inv.TTNStatus,
		nullIfEmpty(inv.TTNSaveID), nullIfEmpty(inv.TTNGeneratedRef), nullIfEmpty(inv.TTNLastError),
		inv.TTNScheduledAt, inv.TTNSubmittedAt, inv.TTNValidatedAt,
	)
	if err != nil {
		return fmt.Errorf("update invoice ttn: %w", err)
	}
	return nil
}

// UpdateDeclaration persiste la declaración manual.
func (r *InvoiceRepo) UpdateDeclaration(ctx context.Context, inv *entity.Invoice) error {
	const query = `
		UPDATE invoices
		SET declaration_status = $2, declaration_ref = $3, declaration_note = $4, declared_at = $5, updated_at = now()
		WHERE id = $1`
	_, err := r.q.Exec(ctx, query, inv.ID, inv.DeclarationStatus,
		nullIfEmpty(inv.DeclarationRef), nullIfEmpty(inv.DeclarationNote), inv.DeclaredAt)
	if err != nil {
		return fmt.Errorf("update invoice declaration: %w", err)
	}
	return nil
}

// MarkValidated status = validated con la fecha de validación.
func (r *InvoiceRepo) MarkValidated(ctx context.Context, id string, at time.Time) error {
	_, err := r.q.Exec(ctx, `UPDATE invoices SET status = 'validated', validated_at = $2, updated_at = now() WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("validate invoice: %w", err)
	}
	return nil
}

// Delete borra la factura y sus dependientes en orden.
func (r *InvoiceRepo) Delete(ctx context.Context, id string) error {
	stmts := []string{
		`DELETE FROM ttn_invoice_queue WHERE invoice_id = $1`,
		`DELETE FROM invoice_signature_views WHERE invoice_id = $1`,
		`DELETE FROM signature_sign_tokens WHERE invoice_id = $1`,
		`DELETE FROM digigo_sessions WHERE invoice_id = $1`,
		`DELETE FROM invoice_signatures WHERE invoice_id = $1`,
		`DELETE FROM invoice_items WHERE invoice_id = $1`,
		`DELETE FROM invoices WHERE id = $1`,
	}
	for _, s := range stmts {
		if _, err := r.q.Exec(ctx, s, id); err != nil {
			if isLockViolation(err) {
				return domain.ErrInvoiceLocked
			}
			return fmt.Errorf("delete invoice: %w", err)
		}
	}
	return nil
}
