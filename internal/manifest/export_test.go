package manifest

// DetectFormat exports detectFormat for testing.
var DetectFormat = detectFormat

// FormatPath exports formatPath for testing.
var FormatPath = formatPath

// ValidProject returns a minimal manifest that passes Validate.
func ValidProject() *Project {
	return &Project{
		Version:            1,
		ProjectID:          "tap-iterable",
		DefaultEnvironment: "test",
		Environments:       []Environment{{Name: "test"}},
		Plugins: Plugins{
			Extractors: []Plugin{{
				Name:         "tap-iterable",
				Namespace:    "tap_iterable",
				PipURL:       "-e .",
				Capabilities: []Capability{CapabilityState, CapabilityCatalog, CapabilityDiscover},
				Settings: []Setting{
					{Name: "api_key", Kind: KindPassword, Sensitive: true},
					{
						Name: "region", Kind: KindOptions, Value: "US",
						Options: []SettingOption{{Label: "United States", Value: "US"}, {Label: "Europe", Value: "EU"}},
					},
					{Name: "start_date", Kind: KindDate},
				},
				SettingsGroupValidation: [][]string{{"api_key"}},
				Type:                    PluginTypeExtractor,
			}},
			Loaders: []Plugin{{
				Name:    "target-jsonl",
				Variant: "andyh1203",
				PipURL:  "target-jsonl",
				Type:    PluginTypeLoader,
			}},
		},
	}
}
