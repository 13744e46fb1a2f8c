package tools

import (
	"context"
	"errors"
	"fmt"
)

var (
	errNoEmailProvider = errors.New("email provider not configured")
	errNoSMSProvider   = errors.New("sms provider not configured")
)

// cardTool renders a fixed card from the facility configuration captured at load time.
type cardTool struct {
	desc    Descriptor
	metrics []Metric
	notes   []string
}

func (t *cardTool) Capability() Capability { return t.desc.Capability }

func (t *cardTool) Summary(ctx context.Context) (Summary, error) {
	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}
	return Summary{
		Capability: t.desc.Capability,
		Title:      t.desc.Title,
		Metrics:    append([]Metric(nil), t.metrics...),
		Notes:      append([]string(nil), t.notes...),
	}, nil
}

func card(c Capability, build func(Env) ([]Metric, []string, error)) Factory {
	return func(env Env) (Tool, error) {
		d, _ := Describe(c)
		metrics, notes, err := build(env)
		if err != nil {
			return nil, err
		}
		return &cardTool{desc: d, metrics: metrics, notes: notes}, nil
	}
}

func m(label string, v any) Metric { return Metric{Label: label, Value: v} }

// Builtin returns a registry with every catalog capability bound to its built-in tool.
func Builtin() *Registry {
	r := NewRegistry()
	must := func(c Capability, f Factory) {
		if err := r.Register(c, f); err != nil {
			panic(err)
		}
	}

	must(CentralDashboard, card(CentralDashboard, func(e Env) ([]Metric, []string, error) {
		c := e.Config
		return []Metric{
			m("Facility", c.Facility.Name),
			m("Type", c.Facility.Type),
			m("Subscription", string(c.Subscription.Tier)),
			m("Seats", c.Subscription.Seats),
		}, nil, nil
	}))
	must(EventControlPanel, card(EventControlPanel, func(e Env) ([]Metric, []string, error) {
		return []Metric{m("Monthly event limit", e.Config.Limits.MaxEventsPerMonth)}, nil, nil
	}))
	must(FacilityMasterTracker, card(FacilityMasterTracker, func(e Env) ([]Metric, []string, error) {
		return []Metric{
			m("Facilities allowed", e.Config.Limits.MaxFacilities),
			m("Multi-facility", e.Config.Features.MultiFacility),
		}, nil, nil
	}))
	must(MembershipDashboard, card(MembershipDashboard, func(e Env) ([]Metric, []string, error) {
		return []Metric{m("Member capacity", e.Config.Limits.MaxMembers)}, nil, nil
	}))
	must(SponsorDashboard, card(SponsorDashboard, func(e Env) ([]Metric, []string, error) {
		return []Metric{m("Currency", e.Config.Facility.Currency)}, nil, nil
	}))

	for _, c := range []Capability{AIEventForecast, AIRevenueMaximizer, AIStrategyDashboard, AISponsorOpportunityFinder} {
		must(c, card(c, func(e Env) ([]Metric, []string, error) {
			if !e.Config.Features.AIModules {
				return nil, nil, errors.New("ai modules disabled in facility features")
			}
			return []Metric{m("Analytics", e.Config.Features.AdvancedAnalytics)}, nil, nil
		}))
	}

	must(FacilityAccessTracker, card(FacilityAccessTracker, func(e Env) ([]Metric, []string, error) {
		return []Metric{m("Timezone", e.Config.Facility.Timezone)}, nil, nil
	}))
	must(FacilityCapacityAlerts, card(FacilityCapacityAlerts, func(e Env) ([]Metric, []string, error) {
		l := e.Config.Limits
		var notes []string
		if l.MaxUsers < e.Config.Subscription.Seats {
			notes = append(notes, fmt.Sprintf("user limit %d is below licensed seats %d", l.MaxUsers, e.Config.Subscription.Seats))
		}
		return []Metric{
			m("Max users", l.MaxUsers),
			m("Max members", l.MaxMembers),
			m("Storage (GB)", l.StorageGB),
		}, notes, nil
	}))
	must(FacilityContractMonitor, card(FacilityContractMonitor, func(e Env) ([]Metric, []string, error) {
		return []Metric{m("Subscription renews", e.Config.Subscription.ValidUntil.Format("2006-01-02"))}, nil, nil
	}))
	must(FacilityLayoutMap, card(FacilityLayoutMap, func(e Env) ([]Metric, []string, error) {
		return []Metric{m("Facility type", e.Config.Facility.Type)}, nil, nil
	}))

	for _, c := range []Capability{RevenueHeatmap, RevenueProjection, DynamicPricing} {
		must(c, card(c, func(e Env) ([]Metric, []string, error) {
			return []Metric{m("Currency", e.Config.Facility.Currency)}, nil, nil
		}))
	}

	must(WeeklyReportGenerator, card(WeeklyReportGenerator, func(e Env) ([]Metric, []string, error) {
		return []Metric{m("Language", e.Config.Facility.Language)}, nil, nil
	}))
	must(PDFExport, card(PDFExport, func(e Env) ([]Metric, []string, error) {
		return []Metric{m("Branding", e.Config.Branding.FacilityName)}, nil, nil
	}))

	must(EmailNotifications, card(EmailNotifications, func(e Env) ([]Metric, []string, error) {
		p := e.Config.Integrations.EmailProvider
		if p == nil || *p == "" {
			return nil, nil, errNoEmailProvider
		}
		return []Metric{m("Provider", *p)}, nil, nil
	}))
	must(SMSAlertCenter, card(SMSAlertCenter, func(e Env) ([]Metric, []string, error) {
		p := e.Config.Integrations.SMSProvider
		if p == nil || *p == "" {
			return nil, nil, errNoSMSProvider
		}
		return []Metric{m("Provider", *p)}, nil, nil
	}))
	return r
}
