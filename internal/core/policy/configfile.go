package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML-on-disk shape of a Config, for operators who want
// to hand-author a policy file rather than build Config in Go. It mirrors
// Config field-for-field; LoadConfigFile converts it.
type FileConfig struct {
	Name                     string   `yaml:"name"`
	BlockedReadPaths         []string `yaml:"blockedReadPaths,omitempty"`
	BlockedWritePaths        []string `yaml:"blockedWritePaths,omitempty"`
	DangerousCommandPatterns []string `yaml:"dangerousCommandPatterns,omitempty"`
	AllowedDomains           []string `yaml:"allowedDomains,omitempty"`
	AllowedSSHHosts          []string `yaml:"allowedSSHHosts,omitempty"`
	AllowedRepoSubstrings    []string `yaml:"allowedRepoSubstrings,omitempty"`
	RequestsPerMinute        int      `yaml:"requestsPerMinute,omitempty"`
}

// LoadConfigFile reads a YAML policy file from path and converts it to a
// Config. It does not call New; callers still construct the Engine
// themselves so configuration and engine construction stay separate steps.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("policy: read config file %q: %w", path, err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("policy: parse config file %q: %w", path, err)
	}

	return Config{
		Name:                     fc.Name,
		BlockedReadPaths:         fc.BlockedReadPaths,
		BlockedWritePaths:        fc.BlockedWritePaths,
		DangerousCommandPatterns: fc.DangerousCommandPatterns,
		AllowedDomains:           fc.AllowedDomains,
		AllowedSSHHosts:          fc.AllowedSSHHosts,
		AllowedRepoSubstrings:    fc.AllowedRepoSubstrings,
		RequestsPerMinute:        fc.RequestsPerMinute,
	}, nil
}
