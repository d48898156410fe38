package scoreapi

import (
	_ "embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
)

//go:embed case.gohtml
var caseTemplateSrc string

var caseTemplate = template.Must(template.New("case").Funcs(template.FuncMap{
	"pct": func(risk float64) string { return fmt.Sprintf("%.1f%%", risk*100) },
}).Parse(caseTemplateSrc))

// handleCaseView renders the HTML case view for clinicians following the
// link spoken in a voice alert. Shows the alert record only, never the raw
// feature vector.
func (a *API) handleCaseView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	al, ok, err := a.svc.Get(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get alert for case view", "id", id)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "case not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := caseTemplate.Execute(w, al); err != nil {
		a.logger.Error(r.Context(), err, "failed to render case view", "id", id)
	}
}
