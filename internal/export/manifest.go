package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// RepoPath names one repository by project key and slug.
type RepoPath struct {
	Project string `yaml:"project"`
	Slug    string `yaml:"slug"`
}

func (p RepoPath) String() string {
	return p.Project + "/" + p.Slug
}

// ParseRepoPath parses "PROJECT/slug".
func ParseRepoPath(s string) (RepoPath, error) {
	project, slug, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || project == "" || slug == "" || strings.Contains(slug, "/") {
		return RepoPath{}, fmt.Errorf("invalid repository %q: expected PROJECT/slug", s)
	}
	return RepoPath{Project: project, Slug: slug}, nil
}

// ReadManifest reads the repositories listed in path. Files ending in .yml
// or .yaml hold a list whose entries are either "PROJECT/slug" strings or
// {project, slug} maps; anything else is read as CSV with one
// project,slug row per repository and an optional header.
func ReadManifest(path string) ([]RepoPath, error) {
	f, err := os.Open(path) // #nosec G304 - manifest path from the command line
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return readYAMLManifest(f)
	default:
		return readCSVManifest(f)
	}
}

func readCSVManifest(r io.Reader) ([]RepoPath, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var paths []RepoPath
	for line := 1; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return paths, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse manifest: %w", err)
		}
		if line == 1 && len(row) >= 2 && strings.EqualFold(row[0], "project") && strings.EqualFold(row[1], "slug") {
			continue
		}
		switch {
		case len(row) == 1 && strings.TrimSpace(row[0]) == "":
			continue
		case len(row) == 1:
			p, err := ParseRepoPath(row[0])
			if err != nil {
				return nil, fmt.Errorf("manifest line %d: %w", line, err)
			}
			paths = append(paths, p)
		case len(row) == 2:
			p := RepoPath{Project: strings.TrimSpace(row[0]), Slug: strings.TrimSpace(row[1])}
			if p.Project == "" || p.Slug == "" {
				return nil, fmt.Errorf("manifest line %d: project and slug are required", line)
			}
			paths = append(paths, p)
		default:
			return nil, fmt.Errorf("manifest line %d: expected project,slug but got %d fields", line, len(row))
		}
	}
}

func readYAMLManifest(r io.Reader) ([]RepoPath, error) {
	var nodes []yaml.Node
	if err := yaml.NewDecoder(r).Decode(&nodes); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	paths := make([]RepoPath, 0, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		var p RepoPath
		switch n.Kind {
		case yaml.ScalarNode:
			parsed, err := ParseRepoPath(n.Value)
			if err != nil {
				return nil, fmt.Errorf("manifest line %d: %w", n.Line, err)
			}
			p = parsed
		case yaml.MappingNode:
			if err := n.Decode(&p); err != nil {
				return nil, fmt.Errorf("manifest line %d: %w", n.Line, err)
			}
			if p.Project == "" || p.Slug == "" {
				return nil, fmt.Errorf("manifest line %d: project and slug are required", n.Line)
			}
		default:
			return nil, fmt.Errorf("manifest line %d: expected PROJECT/slug or a project/slug map", n.Line)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// UniqueRepoPaths merges lists, keeping the first occurrence of each
// repository.
func UniqueRepoPaths(lists ...[]RepoPath) []RepoPath {
	seen := make(map[RepoPath]bool)
	var out []RepoPath
	for _, list := range lists {
		for _, p := range list {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}
