package entity

import "time"

// Company emisor de las facturas (identidad fiscal tunecina).
type Company struct {
	ID                 string
	Name               string
	TaxID              string // matricule fiscal
	Address            string
	Street             string
	City               string
	PostalCode         string
	Country            string
	Phone              string
	Email              string
	ValidationRequired bool // exige validación del contable antes de enviar a TTN
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
