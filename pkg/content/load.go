package content

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/game.yaml
var defaultGame []byte

// Default returns the built-in game content.
func Default() (Content, error) {
	return Parse(defaultGame, "yaml")
}

// LoadFile reads content from a .json, .yaml or .yml file.
func LoadFile(path string) (Content, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Content{}, fmt.Errorf("failed to read content file %s: %w", path, err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	c, err := Parse(data, format)
	if err != nil {
		return Content{}, fmt.Errorf("failed to parse content file %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes content strictly: unknown fields are errors.
func Parse(data []byte, format string) (Content, error) {
	var c Content
	switch format {
	case "yaml", "yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&c); err != nil {
			return Content{}, fmt.Errorf("invalid yaml content: %w", err)
		}
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&c); err != nil {
			return Content{}, fmt.Errorf("invalid json content: %w", err)
		}
	default:
		return Content{}, fmt.Errorf("unsupported content format %q", format)
	}
	return c, nil
}
