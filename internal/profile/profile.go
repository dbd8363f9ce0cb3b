// Package profile manages named shell profiles stored in
// ~/.config/convocli/profiles.toml.
//
// A profile bundles the shell binary with the detection tuning that
// shell needs: extra prompt patterns and a quiet-timeout override.
// Sessions started with --profile pick these up instead of the global
// defaults.
package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/convocli/convocli/internal/prompt"
)

// Profile is one named shell configuration.
type Profile struct {
	Shell          string   `toml:"shell"`
	PromptPatterns []string `toml:"prompt_patterns,omitempty"`
	QuietTimeoutMS int      `toml:"quiet_timeout_ms,omitempty"`
}

// QuietTimeout returns the profile's timeout override, zero when unset.
func (p Profile) QuietTimeout() time.Duration {
	if p.QuietTimeoutMS <= 0 {
		return 0
	}

	return time.Duration(p.QuietTimeoutMS) * time.Millisecond
}

// Validate checks the profile for obvious misconfiguration.
func (p Profile) Validate() error {
	if p.Shell == "" {
		return errors.New("profile shell is required")
	}

	if err := prompt.CompilePatterns(p.PromptPatterns); err != nil {
		return err
	}

	return nil
}

// File is the on-disk profile collection.
type File struct {
	Profiles map[string]Profile `toml:"profiles"`
}

// Load reads profiles from path. A missing file yields an empty
// collection, not an error.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the user's own config dir
	if err != nil {
		if os.IsNotExist(err) {
			return &File{Profiles: map[string]Profile{}}, nil
		}

		return nil, fmt.Errorf("read profiles file: %w", err)
	}

	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse profiles file: %w", err)
	}

	if f.Profiles == nil {
		f.Profiles = map[string]Profile{}
	}

	for name, p := range f.Profiles {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("profile %q: %w", name, err)
		}
	}

	return &f, nil
}

// Save writes the collection back to path.
func (f *File) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create profiles directory: %w", err)
	}

	data, err := toml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal profiles: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write profiles file: %w", err)
	}

	return nil
}

// Get returns a named profile.
func (f *File) Get(name string) (Profile, bool) {
	p, ok := f.Profiles[name]
	return p, ok
}

// Set validates and stores a profile under name.
func (f *File) Set(name string, p Profile) error {
	if name == "" {
		return errors.New("profile name is required")
	}

	if err := p.Validate(); err != nil {
		return err
	}

	f.Profiles[name] = p

	return nil
}

// Delete removes a named profile, reporting whether it existed.
func (f *File) Delete(name string) bool {
	if _, ok := f.Profiles[name]; !ok {
		return false
	}

	delete(f.Profiles, name)

	return true
}

// Names returns profile names in sorted order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Profiles))
	for name := range f.Profiles {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
