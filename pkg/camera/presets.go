package camera

// Preset names for common configurations
const (
	PresetDefault = "default"
	PresetLegacy  = "legacy"
	Preset720p    = "720p"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault: DefaultConfig(),
		PresetLegacy:  LegacyConfig(),
		Preset720p:    HD720Config(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{
		PresetDefault,
		PresetLegacy,
		Preset720p,
	}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	presets := Presets()
	if cfg, ok := presets[name]; ok {
		return &cfg
	}
	return nil
}

// HD720Config returns 720p HD configuration.
// Signs can be held further away, at a higher CPU cost per frame.
func HD720Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1280
	cfg.Height = 720
	cfg.Framerate = 10
	return cfg
}

// ApplyPreset copies the capture settings of a preset into cfg, keeping the
// backend selection. Unknown names leave cfg unchanged and return false.
func ApplyPreset(cfg *Config, name string) bool {
	preset := GetPreset(name)
	if preset == nil {
		return false
	}
	cfg.Width = preset.Width
	cfg.Height = preset.Height
	cfg.Framerate = preset.Framerate
	return true
}
