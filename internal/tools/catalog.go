// Package tools maps dashboard capabilities to typed tool implementations.
//
// Capabilities are resolved through a Registry at startup. A capability without a
// registered factory is reported as ErrNotRegistered instead of being skipped silently.
package tools

import (
	"fmt"
	"strings"
)

// Capability identifies one dashboard tool.
type Capability string

const (
	CentralDashboard           Capability = "central_dashboard"
	EventControlPanel          Capability = "event_control_panel"
	FacilityMasterTracker      Capability = "facility_master_tracker"
	MembershipDashboard        Capability = "membership_dashboard"
	SponsorDashboard           Capability = "sponsor_dashboard"
	AIEventForecast            Capability = "ai_event_forecast"
	AIRevenueMaximizer         Capability = "ai_revenue_maximizer"
	AIStrategyDashboard        Capability = "ai_strategy_dashboard"
	AISponsorOpportunityFinder Capability = "ai_sponsor_opportunity_finder"
	FacilityAccessTracker      Capability = "facility_access_tracker"
	FacilityCapacityAlerts     Capability = "facility_capacity_alerts"
	FacilityContractMonitor    Capability = "facility_contract_monitor"
	FacilityLayoutMap          Capability = "facility_layout_map"
	RevenueHeatmap             Capability = "revenue_heatmap"
	RevenueProjection          Capability = "revenue_projection_simulator"
	DynamicPricing             Capability = "dynamic_pricing_tool"
	WeeklyReportGenerator      Capability = "weekly_report_generator"
	PDFExport                  Capability = "pdf_export_tool"
	EmailNotifications         Capability = "email_notifications"
	SMSAlertCenter             Capability = "sms_alert_center"
)

// Category groups capabilities in the menu.
type Category string

const (
	CategoryCore           Category = "core"
	CategoryAI             Category = "ai"
	CategoryFacility       Category = "facility"
	CategoryFinancial      Category = "financial"
	CategoryReporting      Category = "reporting"
	CategoryCommunications Category = "communications"
)

// Descriptor is the static menu entry of a capability.
type Descriptor struct {
	Capability Capability `json:"capability"`
	Title      string     `json:"title"`
	Category   Category   `json:"category"`
}

// AI reports whether the capability belongs to the AI tool set, which starter tiers do not get.
func (d Descriptor) AI() bool { return d.Category == CategoryAI }

var catalog = []Descriptor{
	{CentralDashboard, "Central Dashboard", CategoryCore},
	{EventControlPanel, "Event Control Panel", CategoryCore},
	{FacilityMasterTracker, "Facility Master Tracker", CategoryCore},
	{MembershipDashboard, "Membership Dashboard", CategoryCore},
	{SponsorDashboard, "Sponsor Dashboard", CategoryCore},

	{AIEventForecast, "AI Event Forecast", CategoryAI},
	{AIRevenueMaximizer, "AI Revenue Maximizer", CategoryAI},
	{AIStrategyDashboard, "AI Strategy Dashboard", CategoryAI},
	{AISponsorOpportunityFinder, "AI Sponsor Finder", CategoryAI},

	{FacilityAccessTracker, "Facility Access Tracker", CategoryFacility},
	{FacilityCapacityAlerts, "Facility Capacity Alerts", CategoryFacility},
	{FacilityContractMonitor, "Facility Contract Monitor", CategoryFacility},
	{FacilityLayoutMap, "Facility Layout Map", CategoryFacility},

	{RevenueHeatmap, "Revenue Heatmap", CategoryFinancial},
	{RevenueProjection, "Revenue Projection", CategoryFinancial},
	{DynamicPricing, "Dynamic Pricing", CategoryFinancial},

	{WeeklyReportGenerator, "Reports Generator", CategoryReporting},
	{PDFExport, "PDF Export Tool", CategoryReporting},

	{EmailNotifications, "Email Manager", CategoryCommunications},
	{SMSAlertCenter, "SMS Alerts", CategoryCommunications},
}

var byCapability = func() map[Capability]Descriptor {
	m := make(map[Capability]Descriptor, len(catalog))
	for _, d := range catalog {
		m[d.Capability] = d
	}
	return m
}()

// Catalog returns every known capability in menu order.
func Catalog() []Descriptor {
	out := make([]Descriptor, len(catalog))
	copy(out, catalog)
	return out
}

// Describe returns the descriptor of c.
func Describe(c Capability) (Descriptor, bool) {
	d, ok := byCapability[c]
	return d, ok
}

// ParseCapability validates a capability name.
func ParseCapability(raw string) (Capability, error) {
	c := Capability(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := byCapability[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCapability, raw)
	}
	return c, nil
}
