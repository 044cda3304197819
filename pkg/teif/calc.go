// Package teif: aritmética de montos de la factura electrónica tunecina (TEIF).
// Todos los montos se expresan con 3 decimales (millimes) y se redondean
// "half-up" sobre el entero escalado.
package teif

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Scale número de decimales de los montos TEIF.
const Scale = 3

var hundred = decimal.NewFromInt(100)

// Round3 redondea a 3 decimales (half-up; decimal es exacto, no hay error binario).
func Round3(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// LineInput datos mínimos de una línea para el cálculo.
type LineInput struct {
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal // precio unitario HT
	DiscountPct decimal.Decimal // 0..100
	VATPct      decimal.Decimal // 0, 7, 13, 19...
}

// LineTotals totales redondeados de una línea.
type LineTotals struct {
	HT  decimal.Decimal
	VAT decimal.Decimal
	TTC decimal.Decimal
}

// ComputeLine calcula HT = qty × pu × (1 − desc/100), TVA = HT × tva/100 y TTC = HT + TVA.
// Cada valor se redondea por separado a partir de los valores sin redondear.
func ComputeLine(in LineInput) LineTotals {
	disc := clampPct(in.DiscountPct)
	ht := in.Quantity.Mul(in.UnitPrice).Mul(decimal.NewFromInt(1).Sub(disc.Div(hundred)))
	vat := ht.Mul(in.VATPct).Div(hundred)
	return LineTotals{
		HT:  Round3(ht),
		VAT: Round3(vat),
		TTC: Round3(ht.Add(vat)),
	}
}

// DocumentTotals suma los totales ya redondeados de las líneas y redondea el resultado.
// Volver a sumar los valores de línea reproduce exactamente estos totales.
func DocumentTotals(lines []LineTotals) LineTotals {
	var out LineTotals
	for _, l := range lines {
		out.HT = out.HT.Add(l.HT)
		out.VAT = out.VAT.Add(l.VAT)
		out.TTC = out.TTC.Add(l.TTC)
	}
	out.HT = Round3(out.HT)
	out.VAT = Round3(out.VAT)
	out.TTC = Round3(out.TTC)
	return out
}

// VATGroup base imponible e impuesto acumulados de una tasa de TVA.
type VATGroup struct {
	Rate decimal.Decimal
	Base decimal.Decimal
	Tax  decimal.Decimal
}

// VATBreakdown agrupa las líneas por tasa de TVA, ordenadas de menor a mayor.
// Si no hay líneas devuelve un único grupo a tasa 0.
func VATBreakdown(lines []LineInput) []VATGroup {
	byRate := make(map[string]*VATGroup)
	for _, l := range lines {
		t := ComputeLine(l)
		key := l.VATPct.String()
		g, ok := byRate[key]
		if !ok {
			g = &VATGroup{Rate: l.VATPct}
			byRate[key] = g
		}
		g.Base = g.Base.Add(t.HT)
		g.Tax = g.Tax.Add(t.VAT)
	}
	if len(byRate) == 0 {
		return []VATGroup{{Rate: decimal.Zero, Base: decimal.Zero, Tax: decimal.Zero}}
	}
	out := make([]VATGroup, 0, len(byRate))
	for _, g := range byRate {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rate.LessThan(out[j].Rate) })
	return out
}

// FormatAmount formatea un monto con 3 decimales fijos ("180.000").
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}

func clampPct(p decimal.Decimal) decimal.Decimal {
	if p.IsNegative() {
		return decimal.Zero
	}
	if p.GreaterThan(hundred) {
		return hundred
	}
	return p
}
