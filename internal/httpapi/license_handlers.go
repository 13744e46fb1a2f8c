package httpapi

import (
	"errors"
	"net/http"
	"slices"

	"go.uber.org/zap"

	"sportai.io/internal/license"
	"sportai.io/internal/tools"
)

func (a *API) handleLicense(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.license.Info())
}

func (a *API) handleFeature(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !slices.Contains(license.AllFeatures(), name) {
		writeError(w, r, http.StatusNotFound, "unknown feature")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"feature":   name,
		"available": a.license.CheckFeatureAccess(name),
		"tier":      a.facility.Subscription().Tier,
	})
}

func (a *API) handlePlans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"plans": license.Plans()})
}

func (a *API) handleListTools(w http.ResponseWriter, r *http.Request) {
	menu := a.currentMenu()
	if menu == nil {
		writeError(w, r, http.StatusServiceUnavailable, "tools are not loaded")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tools":  menu.Entries(),
		"health": menu.Health(),
	})
}

func (a *API) handleTool(w http.ResponseWriter, r *http.Request) {
	c, err := tools.ParseCapability(r.PathValue("capability"))
	if err != nil {
		handleToolError(w, r, err)
		return
	}
	menu := a.currentMenu()
	if menu == nil {
		writeError(w, r, http.StatusServiceUnavailable, "tools are not loaded")
		return
	}
	tool, err := menu.Get(c)
	if err != nil {
		handleToolError(w, r, err)
		return
	}
	sum, err := tool.Summary(r.Context())
	if err != nil {
		a.log.Error("tool summary", zap.String("capability", string(c)), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "Error loading module")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func handleToolError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tools.ErrUnknownCapability):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, tools.ErrNotLoaded), errors.Is(err, tools.ErrNotRegistered):
		writeError(w, r, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
