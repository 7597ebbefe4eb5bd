package shared

// Features collects the global toggles that gate optional subsystems.
type Features struct {
	Roles    bool
	Teams    bool
	Features bool
	Audit    bool
}

// AllFeatures returns a Features value with every toggle on.
func AllFeatures() Features {
	return Features{Roles: true, Teams: true, Features: true, Audit: true}
}
