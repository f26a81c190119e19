package entitlement

// SetModulesDTO replaces a principal's module set wholesale.
type SetModulesDTO struct {
	Modules []string `json:"modules"`
}

// SetAdminDTO toggles a principal's admin flag. The pointer distinguishes
// an omitted field from an explicit false.
type SetAdminDTO struct {
	IsAdmin *bool `json:"is_admin"`
}

// ValidationError represents a simple validation error from DTO validation.
type ValidationError struct {
	Msg string
}

func (v ValidationError) Error() string { return v.Msg }

// Validate parses the raw module identifiers against the catalog.
func (d SetModulesDTO) Validate() ([]ModuleID, error) {
	if d.Modules == nil {
		return nil, ValidationError{Msg: "modules is required"}
	}
	modules := make([]ModuleID, 0, len(d.Modules))
	seen := make(map[ModuleID]struct{}, len(d.Modules))
	for _, raw := range d.Modules {
		id, err := ParseModuleID(raw)
		if err != nil {
			return nil, ValidationError{Msg: "unknown module: " + raw}
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		modules = append(modules, id)
	}
	return modules, nil
}

func (d SetAdminDTO) Validate() error {
	if d.IsAdmin == nil {
		return ValidationError{Msg: "is_admin is required"}
	}
	return nil
}

// RecordResponse is the transport shape of an entitlement record.
type RecordResponse struct {
	PrincipalID string   `json:"principal_id"`
	IsAdmin     bool     `json:"is_admin"`
	Modules     []string `json:"modules"`
}

func NewRecordResponse(principalID string, rec *Record) RecordResponse {
	modules := make([]string, 0, len(rec.Modules))
	for _, m := range rec.Modules {
		modules = append(modules, string(m))
	}
	return RecordResponse{
		PrincipalID: principalID,
		IsAdmin:     rec.IsAdmin,
		Modules:     modules,
	}
}

// ModuleInfo describes a catalog entry for the admin portal module grid.
type ModuleInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

var moduleNames = map[ModuleID]string{
	ModuleAdmin:          "Admin Dashboard",
	ModuleUserManagement: "User Management",
	ModuleSystemSettings: "System Settings",
	ModuleReports:        "Reports",
	ModuleBasic:          "Basic Access",
	ModuleSupport:        "Support Tickets",
	ModuleBilling:        "Billing",
	ModuleInventory:      "Inventory",
	ModuleAnalytics:      "Analytics",
}

// CatalogResponse lists every module in the fixed catalog.
func CatalogResponse() []ModuleInfo {
	infos := make([]ModuleInfo, 0, len(Catalog()))
	for _, id := range Catalog() {
		infos = append(infos, ModuleInfo{ID: string(id), Name: moduleNames[id]})
	}
	return infos
}
