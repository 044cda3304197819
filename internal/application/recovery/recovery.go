// Package recovery reconstruye el contexto de una firma remota cuando el proveedor
// devuelve al usuario a la raíz de la aplicación sin los parámetros de correlación.
//
// El protocolo es fijo: claves digigo_state, digigo_invoice_id y digigo_back_url,
// buscadas primero en el almacenamiento duradero y luego en el de sesión.
package recovery

import (
	"net/url"
	"regexp"
	"strings"
)

// Claves de almacenamiento del navegador.
const (
	KeyState     = "digigo_state"
	KeyInvoiceID = "digigo_invoice_id"
	KeyBackURL   = "digigo_back_url"
)

// CompletionPath manejador que termina la firma.
const CompletionPath = "/digigo/redirect"

// TriggerParams parámetros que indican un retorno del proveedor.
var TriggerParams = []string{"token", "code", "error"}

var uuidRe = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// StorageReader un nivel de almacenamiento (localStorage, sessionStorage).
type StorageReader interface {
	Get(key string) string
}

// MapStorage nivel de almacenamiento en memoria.
type MapStorage map[string]string

func (m MapStorage) Get(key string) string { return m[key] }

// Context valores recuperados. Un campo vacío no se pudo recuperar.
type Context struct {
	State     string
	InvoiceID string
	BackURL   string
}

// IsUUID comprueba la forma estricta de un UUID.
func IsUUID(s string) bool { return uuidRe.MatchString(s) }

// Triggered informa si la navegación trae alguno de los parámetros de retorno.
func Triggered(query url.Values) bool {
	for _, p := range TriggerParams {
		if strings.TrimSpace(query.Get(p)) != "" {
			return true
		}
	}
	return false
}

// RecoverContext aplica el protocolo de recuperación. ok=false cuando la navegación no
// es un retorno del proveedor. Los niveles se consultan en orden y gana el primero con valor.
func RecoverContext(query url.Values, tiers ...StorageReader) (Context, bool) {
	if !Triggered(query) {
		return Context{}, false
	}
	var c Context

	c.State = strings.TrimSpace(query.Get("state"))
	if !IsUUID(c.State) {
		c.State = lookup(tiers, KeyState, IsUUID)
	}
	c.InvoiceID = strings.TrimSpace(query.Get("invoice_id"))
	if !IsUUID(c.InvoiceID) {
		c.InvoiceID = lookup(tiers, KeyInvoiceID, IsUUID)
	}
	c.BackURL = strings.TrimSpace(query.Get("back"))
	if c.BackURL == "" {
		c.BackURL = lookup(tiers, KeyBackURL, nil)
	}
	return c, true
}

// FromQueryOnly informa si state e invoice_id válidos ya venían en la query,
// es decir, si el servidor puede reenviar sin consultar el navegador.
func FromQueryOnly(query url.Values) bool {
	return IsUUID(strings.TrimSpace(query.Get("state"))) && IsUUID(strings.TrimSpace(query.Get("invoice_id")))
}

// ForwardURL vuelve a adjuntar los valores recuperados a la query original.
// Lo que no se recuperó se omite; el manejador de destino falla cerrado.
func ForwardURL(c Context, query url.Values) string {
	qs := url.Values{}
	for k, v := range query {
		qs[k] = append([]string(nil), v...)
	}
	set := func(key, value string) {
		if value == "" {
			qs.Del(key)
			return
		}
		qs.Set(key, value)
	}
	set("state", c.State)
	set("invoice_id", c.InvoiceID)
	set("back", c.BackURL)

	if enc := qs.Encode(); enc != "" {
		return CompletionPath + "?" + enc
	}
	return CompletionPath
}

func lookup(tiers []StorageReader, key string, valid func(string) bool) string {
	for _, t := range tiers {
		if t == nil {
			continue
		}
		v := strings.TrimSpace(t.Get(key))
		if v == "" {
			continue
		}
		if valid != nil && !valid(v) {
			continue
		}
		return v
	}
	return ""
}
