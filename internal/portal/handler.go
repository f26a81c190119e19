package portal

import (
	"log/slog"
	"net/http"

	"github.com/visayasmed/access-management/internal/entitlement"
	"github.com/visayasmed/access-management/internal/transport"
	"github.com/visayasmed/access-management/pkg/logger"
)

// Handler serves the dashboard tab content. The tabs carry no state of
// their own; they exist as named modules for the access layer to gate.
type Handler struct {
	*transport.BaseHandler
}

func NewHandler() *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
	}
}

type tabContent struct {
	Module      string   `json:"module"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Items       []string `json:"items"`
}

var tabs = map[entitlement.ModuleID]tabContent{
	entitlement.ModuleBasic: {
		Module:      string(entitlement.ModuleBasic),
		Title:       "Overview",
		Description: "Your account overview and recent activity.",
		Items:       []string{"Profile", "Recent activity", "Notifications"},
	},
	entitlement.ModuleSupport: {
		Module:      string(entitlement.ModuleSupport),
		Title:       "Support Tickets",
		Description: "Open and track IT support tickets.",
		Items:       []string{"Open ticket", "My tickets", "Knowledge base"},
	},
	entitlement.ModuleReports: {
		Module:      string(entitlement.ModuleReports),
		Title:       "Reports",
		Description: "Operational and service-level reports.",
		Items:       []string{"Monthly summary", "SLA compliance", "Incident trends"},
	},
	entitlement.ModuleBilling: {
		Module:      string(entitlement.ModuleBilling),
		Title:       "Billing",
		Description: "Invoices and payment history.",
		Items:       []string{"Invoices", "Payment methods", "Statements"},
	},
	entitlement.ModuleInventory: {
		Module:      string(entitlement.ModuleInventory),
		Title:       "Inventory",
		Description: "Hardware and software asset inventory.",
		Items:       []string{"Workstations", "Servers", "Licenses"},
	},
	entitlement.ModuleAnalytics: {
		Module:      string(entitlement.ModuleAnalytics),
		Title:       "Analytics",
		Description: "Usage and performance analytics.",
		Items:       []string{"Traffic", "Uptime", "Capacity"},
	},
	entitlement.ModuleUserManagement: {
		Module:      string(entitlement.ModuleUserManagement),
		Title:       "User Management",
		Description: "Manage portal accounts and their module access.",
		Items:       []string{"Users", "Access grants", "Audit trail"},
	},
	entitlement.ModuleSystemSettings: {
		Module:      string(entitlement.ModuleSystemSettings),
		Title:       "System Settings",
		Description: "Portal-wide configuration.",
		Items:       []string{"General", "Security", "Integrations"},
	},
	entitlement.ModuleAdmin: {
		Module:      string(entitlement.ModuleAdmin),
		Title:       "Admin Dashboard",
		Description: "Administrative overview of the portal.",
		Items:       []string{"Users", "Modules", "System health"},
	},
}

// Tab returns the handler for one module's tab. Access is enforced by the
// guard middleware on the route; by the time this runs the grant is
// established.
func (h *Handler) Tab(id entitlement.ModuleID) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		content, ok := tabs[id]
		if !ok {
			h.WriteError(w, http.StatusNotFound, "unknown module")
			return
		}

		h.WriteJSON(w, http.StatusOK, content)
	}
}
