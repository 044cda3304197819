package dto

// ErrorResponse cuerpo de error HTTP. Problems solo viaja en errores de validación.
type ErrorResponse struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Problems []string `json:"problems,omitempty"`
}

// OKResponse confirmación simple.
type OKResponse struct {
	OK      bool `json:"ok"`
	Already bool `json:"already,omitempty"`
}
