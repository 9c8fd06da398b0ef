package config

// WarningCode identifies one class of non-fatal configuration concern.
type WarningCode string

const (
	// WarningCacheWithoutAuth fires when the shared Redis cache is enabled
	// without gateway auth: any caller can read cached benchmark payloads
	// and computed model-metrics views through the HTTP surface.
	WarningCacheWithoutAuth WarningCode = "cache_without_auth"
)

// Warning is one non-fatal configuration concern surfaced at load time;
// unlike Validate, a Warning never blocks startup.
type Warning struct {
	Code    WarningCode
	Message string
}

// Warnings inspects cfg for risky-but-valid combinations worth logging.
func (c *Config) Warnings() []Warning {
	var warnings []Warning

	if c.Cache.Type == "redis" && !c.Auth.Enabled {
		warnings = append(warnings, Warning{
			Code:    WarningCacheWithoutAuth,
			Message: "cache.type is redis but auth.enabled is false: cached views are reachable without a token",
		})
	}

	return warnings
}
