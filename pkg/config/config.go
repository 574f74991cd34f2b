// Package config loads pipeline options from TOML or YAML files.
//
// The format is chosen by file extension: .toml, or .yaml / .yml. Field
// names follow the tags on [pipeline.Options], so
//
//	mode = "chunked"
//	chunk_count = 8
//	intervals = [0, 1000, 5000]
//
//	[keys]
//	lookup = "run1/lookup"
//
// is a valid TOML config. Unknown keys are rejected.
package config

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	emerrors "github.com/matzehuels/emerl/pkg/errors"
	"github.com/matzehuels/emerl/pkg/pipeline"
)

// Format is a config file syntax.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatOf returns the format for a file path based on its extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", emerrors.New(emerrors.ErrCodeUnsupported,
		"config %s: unknown extension (want .toml, .yaml or .yml)", path)
}

// Load reads pipeline options from path. Defaults are not applied; call
// ValidateAndSetDefaults on the result.
func Load(path string) (pipeline.Options, error) {
	format, err := FormatOf(path)
	if err != nil {
		return pipeline.Options{}, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return pipeline.Options{}, emerrors.Wrap(emerrors.ErrCodeNotFound, err, "config %s", path)
	}
	if err != nil {
		return pipeline.Options{}, emerrors.Wrap(emerrors.ErrCodeStorage, err, "read config %s", path)
	}
	opts, err := Decode(bytes.NewReader(data), format)
	if err != nil {
		return pipeline.Options{}, emerrors.Wrap(emerrors.GetCode(err), err, "config %s", path)
	}
	return opts, nil
}

// Decode parses options in the given format.
func Decode(r io.Reader, format Format) (pipeline.Options, error) {
	var opts pipeline.Options
	switch format {
	case FormatTOML:
		md, err := toml.NewDecoder(r).Decode(&opts)
		if err != nil {
			return opts, emerrors.Wrap(emerrors.ErrCodeInvalidInput, err, "parse toml")
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return opts, emerrors.New(emerrors.ErrCodeInvalidInput, "unknown key %q", undecoded[0].String())
		}
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
			return opts, emerrors.Wrap(emerrors.ErrCodeInvalidInput, err, "parse yaml")
		}
	default:
		return opts, emerrors.New(emerrors.ErrCodeUnsupported, "unknown config format %q", format)
	}
	return opts, nil
}

// Encode writes opts in the given format.
func Encode(w io.Writer, opts pipeline.Options, format Format) error {
	switch format {
	case FormatTOML:
		return toml.NewEncoder(w).Encode(opts)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(opts); err != nil {
			return err
		}
		return enc.Close()
	}
	return emerrors.New(emerrors.ErrCodeUnsupported, "unknown config format %q", format)
}

// WriteDefault writes a config holding the default options to path,
// creating parent directories as needed. An existing file is an error.
func WriteDefault(path string) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return emerrors.New(emerrors.ErrCodeInvalidInput, "config %s already exists", path)
	}
	var opts pipeline.Options
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := Encode(&buf, opts, format); err != nil {
		return emerrors.Wrap(emerrors.ErrCodeInternal, err, "encode default config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return emerrors.Wrap(emerrors.ErrCodeStorage, err, "create config directory")
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return emerrors.Wrap(emerrors.ErrCodeStorage, err, "write config %s", path)
	}
	return nil
}
