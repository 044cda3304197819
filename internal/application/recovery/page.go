package recovery

import (
	"html/template"
	"io"
)

// bootstrapTmpl aplica el mismo protocolo en el navegador: consulta localStorage y luego
// sessionStorage, completa la query y navega al manejador de destino.
var bootstrapTmpl = template.Must(template.New("bootstrap").Parse(`<!doctype html>
<html lang="fr">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<p>{{.Message}}</p>
<script>
(function () {
  var keys = {state: {{.Keys.State}}, invoice: {{.Keys.InvoiceID}}, back: {{.Keys.BackURL}}};
  var uuid = /^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$/;
  function read(store, key) {
    try { return (window[store].getItem(key) || "").trim(); } catch (e) { return ""; }
  }
  function stored(key, valid) {
    var tiers = ["localStorage", "sessionStorage"];
    for (var i = 0; i < tiers.length; i++) {
      var v = read(tiers[i], key);
      if (v && (!valid || uuid.test(v))) { return v; }
    }
    return "";
  }
  var qs = new URLSearchParams(window.location.search);
  var state = (qs.get("state") || "").trim();
  if (!uuid.test(state)) { state = stored(keys.state, true); }
  var invoice = (qs.get("invoice_id") || "").trim();
  if (!uuid.test(invoice)) { invoice = stored(keys.invoice, true); }
  var back = (qs.get("back") || "").trim() || stored(keys.back, false);
  if (state) { qs.set("state", state); } else { qs.delete("state"); }
  if (invoice) { qs.set("invoice_id", invoice); } else { qs.delete("invoice_id"); }
  if (back) { qs.set("back", back); } else { qs.delete("back"); }
  var q = qs.toString();
  window.location.replace({{.Target}} + (q ? "?" + q : ""));
})();
</script>
</body>
</html>
`))

type pageData struct {
	Title   string
	Message string
	Target  string
	Keys    struct{ State, InvoiceID, BackURL string }
}

// RenderBootstrap escribe la página que completa la recuperación en el navegador.
func RenderBootstrap(w io.Writer) error {
	d := pageData{
		Title:   "Signature DigiGo",
		Message: "Finalisation de la signature…",
		Target:  CompletionPath,
	}
	d.Keys.State, d.Keys.InvoiceID, d.Keys.BackURL = KeyState, KeyInvoiceID, KeyBackURL
	return bootstrapTmpl.Execute(w, d)
}
