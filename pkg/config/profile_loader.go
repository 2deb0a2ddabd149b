package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// SiteProfile carries plant-wide assumptions that fill in inputs an
// operator did not supply, such as the consequence basis of a site or
// its audited management systems factor.
type SiteProfile struct {
	Name        string         `yaml:"name" json:"name"`
	Code        string         `yaml:"code" json:"code"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Defaults    map[string]any `yaml:"defaults" json:"defaults"`
}

// ProfileCode is the canonical form of a site profile code. Codes match
// case-insensitively.
func ProfileCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// FindProfile looks code up in a set returned by LoadAllProfiles.
func FindProfile(profiles map[string]*SiteProfile, code string) (*SiteProfile, bool) {
	p, ok := profiles[ProfileCode(code)]
	return p, ok
}

// LoadProfile loads a site profile YAML by code.
// It searches the profiles directory for profile_<code>.yaml.
func LoadProfile(profilesDir, code string) (*SiteProfile, error) {
	code = ProfileCode(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", code, err)
	}

	profile, err := parseProfile(data)
	if err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", code, err)
	}
	if profile.Code == "" {
		profile.Code = code
	}
	profile.Code = ProfileCode(profile.Code)
	return profile, nil
}

// LoadAllProfiles loads all profile_*.yaml files from the profiles directory,
// keyed by canonical code.
func LoadAllProfiles(profilesDir string) (map[string]*SiteProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*SiteProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		profile, err := parseProfile(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		if profile.Code == "" {
			// profile_offshore.yaml -> offshore
			base := filepath.Base(path)
			profile.Code = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}
		profile.Code = ProfileCode(profile.Code)
		if _, dup := profiles[profile.Code]; dup {
			return nil, fmt.Errorf("%s: duplicate profile code %q", path, profile.Code)
		}

		profiles[profile.Code] = profile
	}

	return profiles, nil
}

func parseProfile(data []byte) (*SiteProfile, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var profile SiteProfile
	if err := dec.Decode(&profile); err != nil {
		return nil, err
	}
	if profile.Name == "" {
		return nil, fmt.Errorf("profile has no name")
	}
	return &profile, nil
}

// Apply returns a copy of in with every absent default filled in.
// Values the caller supplied always win.
func (p *SiteProfile) Apply(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+len(p.Defaults))
	for k, v := range p.Defaults {
		out[k] = v
	}
	for k, v := range in {
		out[k] = v
	}
	return out
}

// DefaultKeys lists the profile's defaulted inputs in sorted order.
func (p *SiteProfile) DefaultKeys() []string {
	keys := make([]string, 0, len(p.Defaults))
	for k := range p.Defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CheckFields reports defaults that name no known input field. A typo in
// a profile would otherwise be silently ignored by every formula.
func (p *SiteProfile) CheckFields(known []string) error {
	set := make(map[string]struct{}, len(known))
	for _, k := range known {
		set[k] = struct{}{}
	}
	var unknown []string
	for _, k := range p.DefaultKeys() {
		if _, ok := set[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("profile %q: unknown input fields %s", p.Code, strings.Join(unknown, ", "))
	}
	return nil
}
