package config

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	yaml "go.yaml.in/yaml/v3"
)

// decode strictly parses a config file: unknown keys and trailing documents are errors.
// Files ending in .json are JSON, everything else is YAML.
func decode(path string, b []byte) (*Config, error) {
	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := decodeJSON(b, &cfg); err != nil {
			return nil, errors.Wrapf(err, "decode json config %s", path)
		}
		return &cfg, nil
	}
	if err := decodeYAML(b, &cfg); err != nil {
		return nil, errors.Wrapf(err, "decode yaml config %s", path)
	}
	return &cfg, nil
}

func decodeYAML(b []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	switch err := dec.Decode(cfg); {
	case errors.Is(err, io.EOF):
		return nil // empty file: all defaults
	case err != nil:
		return err
	}
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return errors.WithHint(errors.New("more than one yaml document"), "keep the whole config in a single document")
	}
	return nil
}

func decodeJSON(b []byte, cfg *Config) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after config object")
	}
	return nil
}
