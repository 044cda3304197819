package teif

// Versión del formato y agencia de control exigidas por TTN.
const (
	Version          = "1.8.8"
	ControlingAgency = "TTN"
	DefaultCurrency  = "TND"
	DefaultCountry   = "TN"
	DefaultMaxBytes  = 50000
)

// Tipos de documento (Bgm/DocumentType@code).
const (
	DocTypeInvoice    = "I-11" // Facture
	DocTypeCreditNote = "I-12" // Facture d’avoir
)

// Calificadores de fecha (Dtm/DateText@functionCode), formato ddMMyy.
const (
	DateIssue  = "I-31"
	DateDue    = "I-32"
	DateFormat = "ddMMyy"
	DateLayout = "020106" // layout Go equivalente a ddMMyy
)

// Roles de socio (PartnerDetails@functionCode) y tipo de identificador.
const (
	PartnerSupplier  = "I-62"
	PartnerCustomer  = "I-64"
	IdentifierTaxID  = "I-01"
	FreeTextGeneral  = "I-451"
	UnitPiece        = "C62"
	TaxTypeVAT       = "I-1602"
	TaxTypeStamp     = "I-1601"
	CurrencyCodeList = "ISO_4217"
	CountryCodeList  = "ISO_3166-1"
)

// Códigos de montos (Moa@amountTypeCode).
const (
	AmountUnitPrice   = "I-183" // precio unitario HT
	AmountLineHT      = "I-171" // total línea HT
	AmountTotalHT     = "I-176" // total HT factura
	AmountTaxableBase = "I-182" // base imponible total
	AmountTotalTax    = "I-181" // total impuestos
	AmountTotalTTC    = "I-180" // total TTC
	AmountTaxBase     = "I-177" // base por tasa
	AmountTaxAmount   = "I-178" // impuesto por tasa
)

// Namespace XML-DSig usado por el bloque de firma.
const NsDsig = "http://www.w3.org/2000/09/xmldsig#"
