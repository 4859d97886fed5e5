package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Pack extends a Policy with extra allow-list entries and protected paths.
// We avoid yaml:",inline" because Policy also has a `version` field.
type Pack struct {
	Name           string   `yaml:"name"`
	Description    string   `yaml:"description"`
	PackVersion    string   `yaml:"version"`
	Author         string   `yaml:"author"`
	Allow          []Entry  `yaml:"allow"`
	Destructive    []string `yaml:"destructive"`
	Writers        []string `yaml:"writers"`
	ProtectedPaths []string `yaml:"protected_paths"`
}

// PackInfo is a summary of a pack for listing.
type PackInfo struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Version     string `yaml:"version,omitempty"`
	Author      string `yaml:"author,omitempty"`
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	EntryCount  int    `yaml:"entries"`
	Error       string `yaml:"error,omitempty"`
}

// LoadPacks reads all .yaml files from the packs directory, in name order,
// and merges them into a copy of base. Files whose name starts with "_" are
// listed but not merged. Entries for a program already allowed are combined:
// subcommand and deny lists are unioned and confirm is sticky.
func LoadPacks(packsDir string, base *Policy) (*Policy, []PackInfo, error) {
	var infos []PackInfo

	entries, err := os.ReadDir(packsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to read packs dir %s: %w", packsDir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	result := clonePolicy(base)

	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}

		path := filepath.Join(packsDir, entry.Name())
		baseName := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		enabled := !strings.HasPrefix(baseName, "_")

		pack, err := loadPack(path)
		if err != nil {
			infos = append(infos, PackInfo{
				Name:    baseName,
				Enabled: false,
				Path:    path,
				Error:   err.Error(),
			})
			continue
		}

		info := PackInfo{
			Name:        pack.Name,
			Description: pack.Description,
			Version:     pack.PackVersion,
			Author:      pack.Author,
			Enabled:     enabled,
			Path:        path,
			EntryCount:  len(pack.Allow),
		}
		if info.Name == "" {
			info.Name = baseName
		}
		infos = append(infos, info)

		if !enabled {
			continue
		}
		mergePackInto(result, pack)
	}

	if err := result.Validate(); err != nil {
		return nil, infos, fmt.Errorf("merged policy is invalid: %w", err)
	}
	return result, infos, nil
}

func loadPack(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("failed to parse pack %s: %w", path, err)
	}
	return &pack, nil
}

func mergePackInto(target *Policy, pack *Pack) {
	for _, e := range pack.Allow {
		idx := -1
		for i := range target.Allow {
			if target.Allow[i].Program == e.Program {
				idx = i
				break
			}
		}
		if idx < 0 {
			target.Allow = append(target.Allow, e)
			continue
		}
		existing := &target.Allow[idx]
		// An unrestricted entry stays unrestricted.
		if len(existing.Subcommands) > 0 && len(e.Subcommands) > 0 {
			existing.Subcommands = union(existing.Subcommands, e.Subcommands)
		} else {
			existing.Subcommands = nil
		}
		existing.DenyArgs = union(existing.DenyArgs, e.DenyArgs)
		existing.Confirm = existing.Confirm || e.Confirm
		if e.Reason != "" {
			existing.Reason = e.Reason
		}
	}

	target.Destructive = union(target.Destructive, pack.Destructive)
	target.Writers = union(target.Writers, pack.Writers)
	target.ProtectedPaths = union(target.ProtectedPaths, pack.ProtectedPaths)
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	for _, v := range a {
		seen[v] = true
	}
	for _, v := range b {
		if !seen[v] {
			a = append(a, v)
			seen[v] = true
		}
	}
	return a
}

func clonePolicy(p *Policy) *Policy {
	clone := &Policy{
		Version:        p.Version,
		Destructive:    append([]string(nil), p.Destructive...),
		Writers:        append([]string(nil), p.Writers...),
		Interpreters:   append([]string(nil), p.Interpreters...),
		ProtectedPaths: append([]string(nil), p.ProtectedPaths...),
		ProtectedDirs:  append([]string(nil), p.ProtectedDirs...),
		EnvPassthrough: append([]string(nil), p.EnvPassthrough...),
	}
	clone.Allow = make([]Entry, len(p.Allow))
	for i, e := range p.Allow {
		e.Subcommands = append(StringOrList(nil), e.Subcommands...)
		e.DenyArgs = append(StringOrList(nil), e.DenyArgs...)
		clone.Allow[i] = e
	}
	return clone
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
