// Package profiles loads named SSH host profiles from a YAML, TOML or JSON file.
package profiles

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/GriffinCanCode/termhub/internal/terminal"
	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

var (
	ErrNotFound      = errors.New("profiles: profile not found")
	ErrInvalid       = errors.New("profiles: invalid profile file")
	ErrUnknownFormat = errors.New("profiles: unknown file format")
)

// Format of a profile file
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// Profile holds connection parameters for one host. Credentials are never
// stored; authentication stays with the ssh client.
type Profile struct {
	Name           string   `yaml:"name" toml:"name" json:"name"`
	User           string   `yaml:"user" toml:"user" json:"user,omitempty"`
	Host           string   `yaml:"host" toml:"host" json:"host"`
	Port           int      `yaml:"port" toml:"port" json:"port,omitempty"`
	IdentityFile   string   `yaml:"identity_file" toml:"identity_file" json:"identity_file,omitempty"`
	ExtraArgs      []string `yaml:"extra_args" toml:"extra_args" json:"extra_args,omitempty"`
	EnvironmentTag string   `yaml:"environment_tag" toml:"environment_tag" json:"environment_tag,omitempty"`
}

type document struct {
	Hosts []Profile `yaml:"hosts" toml:"hosts" json:"hosts"`
}

// Store is an immutable set of profiles keyed by name
type Store struct {
	path     string
	profiles map[string]Profile
}

// Empty returns a store without profiles
func Empty() *Store {
	return &Store{profiles: map[string]Profile{}}
}

// Load reads a profile file. The format follows the extension.
func Load(path string) (*Store, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles: %w", err)
	}

	store, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	store.path = path
	return store, nil
}

// FormatOf maps a file extension to a format
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
	}
}

// Parse decodes and validates profile data
func Parse(data []byte, format Format) (*Store, error) {
	var doc document

	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	case FormatTOML:
		err = toml.Unmarshal(data, &doc)
	case FormatJSON:
		err = sonic.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	store := Empty()
	for i, p := range doc.Hosts {
		p.Name = strings.TrimSpace(p.Name)
		p.Host = strings.TrimSpace(p.Host)

		switch {
		case p.Name == "":
			return nil, fmt.Errorf("%w: host #%d has no name", ErrInvalid, i+1)
		case p.Host == "":
			return nil, fmt.Errorf("%w: profile %q has no host", ErrInvalid, p.Name)
		case p.Port < 0 || p.Port > 65535:
			return nil, fmt.Errorf("%w: profile %q has port %d", ErrInvalid, p.Name, p.Port)
		}
		if _, dup := store.profiles[p.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate profile %q", ErrInvalid, p.Name)
		}
		store.profiles[p.Name] = p
	}

	return store, nil
}

// Path returns the file the store was loaded from, if any
func (s *Store) Path() string {
	return s.path
}

// Get returns a profile by name
func (s *Store) Get(name string) (Profile, error) {
	p, ok := s.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return p, nil
}

// List returns all profiles sorted by name
func (s *Store) List() []Profile {
	out := make([]Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of profiles
func (s *Store) Len() int {
	return len(s.profiles)
}

// Fill completes params with the profile's values. Fields already set on
// params win; the profile name becomes the host id when none is given.
func (p Profile) Fill(params terminal.SSHParams) terminal.SSHParams {
	if params.User == "" {
		params.User = p.User
	}
	if params.Host == "" {
		params.Host = p.Host
	}
	if params.Port == 0 {
		params.Port = p.Port
	}
	if params.IdentityFile == "" {
		params.IdentityFile = p.IdentityFile
	}
	if len(params.ExtraArgs) == 0 && len(p.ExtraArgs) > 0 {
		params.ExtraArgs = append([]string(nil), p.ExtraArgs...)
	}
	if params.EnvironmentTag == "" {
		params.EnvironmentTag = p.EnvironmentTag
	}
	if params.HostID == "" {
		params.HostID = p.Name
	}
	return params
}
