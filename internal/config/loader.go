package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// includeKey names the directive that pulls other files in beneath the
// current one.
const includeKey = "$include"

// envRef matches ${NAME}. Bare $NAME is left alone so keys like $include
// survive expansion.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

var errMultipleDocuments = errors.New("failed to parse config: expected single document")

// loadRaw reads a configuration file into one merged tree, resolving
// $include directives. ${VAR} references are expanded with getenv before
// parsing; an unset variable expands to the empty string.
func loadRaw(path string, getenv func(string) string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("config path is required")
	}
	l := &rawLoader{getenv: getenv, active: map[string]bool{}}
	return l.load(path)
}

// rawLoader walks the include graph. active holds the files on the current
// include chain.
type rawLoader struct {
	getenv func(string) string
	active map[string]bool
}

// load parses one file, then lays it over its includes so keys in the
// including file win.
func (l *rawLoader) load(path string) (map[string]any, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if l.active[abs] {
		return nil, fmt.Errorf("config include cycle detected at %s", abs)
	}
	l.active[abs] = true
	defer delete(l.active, abs)

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	tree, err := parseTree(l.expand(data), filepath.Ext(abs))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}
	includes, err := popIncludes(tree)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}

	base := map[string]any{}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(abs), inc)
		}
		sub, err := l.load(inc)
		if err != nil {
			return nil, err
		}
		overlay(base, sub)
	}
	overlay(base, tree)
	return base, nil
}

func (l *rawLoader) expand(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		return []byte(l.getenv(string(ref[2 : len(ref)-1])))
	})
}

// parseTree decodes a JSON5 or YAML document by file extension.
func parseTree(data []byte, ext string) (map[string]any, error) {
	tree := map[string]any{}
	switch strings.ToLower(ext) {
	case ".json", ".json5":
		if err := json5.Unmarshal(data, &tree); err != nil {
			return nil, err
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&tree); err != nil && err != io.EOF {
			return nil, err
		}
		if err := dec.Decode(&struct{}{}); err != io.EOF {
			return nil, errMultipleDocuments
		}
	}
	if tree == nil {
		tree = map[string]any{}
	}
	return tree, nil
}

// popIncludes removes the include directive from tree and returns its
// non-blank paths.
func popIncludes(tree map[string]any) ([]string, error) {
	val, ok := tree[includeKey]
	if !ok {
		return nil, nil
	}
	delete(tree, includeKey)

	var entries []any
	switch v := val.(type) {
	case nil:
		return nil, nil
	case string:
		entries = []any{v}
	case []any:
		entries = v
	default:
		return nil, fmt.Errorf("%s must be a string or list of strings", includeKey)
	}

	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		p, ok := e.(string)
		if !ok {
			return nil, fmt.Errorf("%s entries must be strings", includeKey)
		}
		if strings.TrimSpace(p) != "" {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

// overlay copies src into dst, descending into nested sections so that
// sibling keys from both sides survive.
func overlay(dst, src map[string]any) {
	for key, val := range src {
		srcSection, srcIsMap := val.(map[string]any)
		dstSection, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			overlay(dstSection, srcSection)
			continue
		}
		dst[key] = val
	}
}

// decodeTree round-trips the merged tree through YAML into Config, rejecting
// unknown keys.
func decodeTree(tree map[string]any) (*Config, error) {
	payload, err := yaml.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(payload))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
