package httpapi

import (
	"embed"
	"html/template"
	"net/http"
	"regexp"

	"go.uber.org/zap"

	"sportai.io/internal/license"
	"sportai.io/internal/tools"
)

//go:embed templates/dashboard.html
var templateFS embed.FS

var (
	dashboardTmpl = template.Must(template.ParseFS(templateFS, "templates/dashboard.html"))
	hexColor      = regexp.MustCompile(`^#[0-9A-Fa-f]{3,8}$`)
)

const defaultPrimaryColor = "#1E40AF"

type dashboardView struct {
	FacilityName  string
	Version       string
	Tier          string
	PrimaryColor  template.CSS
	License       license.Status
	LicenseClass  string
	Entries       []tools.Entry
	Health        tools.Health
	HealthPercent float64
	Plans         []license.Plan
}

// Dashboard renders the landing page. It shows nothing account specific.
func (a *API) Dashboard(w http.ResponseWriter, r *http.Request) {
	cfg := a.facility.Config()
	view := dashboardView{
		FacilityName: cfg.Branding.FacilityName,
		Version:      a.version,
		Tier:         string(cfg.Subscription.Tier),
		PrimaryColor: defaultPrimaryColor,
		License:      a.license.Validate(),
		Plans:        license.Plans(),
	}
	if hexColor.MatchString(cfg.Branding.PrimaryColor) {
		view.PrimaryColor = template.CSS(cfg.Branding.PrimaryColor)
	}
	switch {
	case !view.License.Valid:
		view.LicenseClass = "bad"
	case view.License.Warning:
		view.LicenseClass = "warn"
	default:
		view.LicenseClass = "ok"
	}
	if menu := a.currentMenu(); menu != nil {
		view.Entries = menu.Entries()
		view.Health = menu.Health()
		view.HealthPercent = view.Health.Score * 100
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTmpl.Execute(w, view); err != nil {
		a.log.Error("render dashboard", zap.Error(err))
	}
}
