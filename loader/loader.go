// Package loader reads test cases and driver configs from JSON or YAML files.
package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum-optimism/infra/op-stepper/types"
	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"
)

var ErrNoFiles = errors.New("no case or config files found")

// Config contains loader configuration
type Config struct {
	Log log.Logger
}

// Loader reads case and driver files
type Loader struct {
	log log.Logger
}

// New creates a loader
func New(cfg Config) *Loader {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	return &Loader{log: cfg.Log.New("component", "loader")}
}

func isSupported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// files returns the supported files under path in lexical order.
// A path naming a single file is returned as is.
func files(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var out []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != path && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if isSupported(p) {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", path, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoFiles, path)
	}
	return out, nil
}

// decodeList decodes a file holding either one T or a list of T
func decodeList[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return decodeJSON[T](data)
	case ".yaml", ".yml":
		return decodeYAML[T](data)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}

func decodeJSON[T any](data []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(data)
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	// Keeps large integers in test data exact
	dec.UseNumber()

	if bytes.HasPrefix(trimmed, []byte("[")) {
		var list []T
		if err := dec.Decode(&list); err != nil {
			return nil, fmt.Errorf("parsing JSON: %w", err)
		}
		if err := expectEOF(dec); err != nil {
			return nil, err
		}
		return list, nil
	}
	var one T
	if err := dec.Decode(&one); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	if err := expectEOF(dec); err != nil {
		return nil, err
	}
	return []T{one}, nil
}

// expectEOF rejects anything after the first JSON value
func expectEOF(dec *json.Decoder) error {
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("parsing JSON: unexpected data after top-level value at offset %d", dec.InputOffset())
	}
	return nil
}

func decodeYAML[T any](data []byte) ([]T, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, errors.New("empty YAML document")
	}

	root := doc.Content[0]
	if root.Kind == yaml.SequenceNode {
		var list []T
		if err := root.Decode(&list); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
		return list, nil
	}
	var one T
	if err := root.Decode(&one); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	return []T{one}, nil
}

// LoadCases reads every case under path. Package is the case file's folder
// relative to path, using forward slashes.
func (l *Loader) LoadCases(path string) ([]types.TestCase, error) {
	paths, err := files(path)
	if err != nil {
		return nil, err
	}

	root := path
	if len(paths) == 1 && paths[0] == path {
		root = filepath.Dir(path)
	}

	var (
		cases []types.TestCase
		errs  []error
	)
	for _, p := range paths {
		l.log.Debug("Reading case file", "path", p)
		loaded, err := decodeList[types.TestCase](p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}

		pkg := ""
		if rel, err := filepath.Rel(root, filepath.Dir(p)); err == nil && rel != "." {
			pkg = filepath.ToSlash(rel)
		}
		for i := range loaded {
			tc := &loaded[i]
			tc.Package = pkg
			tc.FileName = filepath.Base(p)
			if err := validateCase(*tc); err != nil {
				errs = append(errs, fmt.Errorf("%s: case %d: %w", p, i+1, err))
				continue
			}
			cases = append(cases, *tc)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	l.log.Info("Loaded cases", "path", path, "files", len(paths), "cases", len(cases))
	return cases, nil
}

func validateCase(tc types.TestCase) error {
	if tc.Name == "" {
		return errors.New("name is required")
	}
	if len(tc.Steps) == 0 {
		return fmt.Errorf("case %s has no steps", tc.Name)
	}
	for i, s := range tc.Steps {
		if s.Name == "" {
			return fmt.Errorf("case %s step %d: name is required", tc.Name, i+1)
		}
	}
	return nil
}

// LoadDrivers reads every driver config under path. It does not validate
// them; the pool rejects invalid configs when they are loaded.
func (l *Loader) LoadDrivers(path string) ([]types.DriverConfig, error) {
	paths, err := files(path)
	if err != nil {
		return nil, err
	}

	var (
		cfgs []types.DriverConfig
		errs []error
	)
	for _, p := range paths {
		l.log.Debug("Reading driver config file", "path", p)
		loaded, err := decodeList[types.DriverConfig](p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		cfgs = append(cfgs, loaded...)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfgs, nil
}

// DriverSource returns a function that rereads the driver configs under path
func (l *Loader) DriverSource(path string) func() ([]types.DriverConfig, error) {
	return func() ([]types.DriverConfig, error) {
		return l.LoadDrivers(path)
	}
}
