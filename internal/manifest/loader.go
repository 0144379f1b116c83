package manifest

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the manifest file name looked up in the project root.
const DefaultFile = "meltano.yml"

// Format is a manifest serialization format.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// detectFormat picks the format from the file extension. Unknown extensions are YAML.
func detectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	default:
		return FormatYAML
	}
}

// Load reads and parses a manifest file from the given path.
// Environment variables in the format ${VAR_NAME} are expanded before parsing.
func Load(path string) (project *Project, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest %s: %w", path, err)
	}

	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close manifest: %w", cerr)
		}
	}()

	return LoadFromReader(file, detectFormat(path))
}

// LoadFromReader reads and parses a manifest from an io.Reader.
// Environment variables in the format ${VAR_NAME} are expanded before parsing.
func LoadFromReader(r io.Reader, format Format) (*Project, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	expanded := []byte(os.ExpandEnv(string(content)))

	var project Project
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(expanded, &project); err != nil {
			return nil, fmt.Errorf("failed to parse manifest TOML: %w", err)
		}
	default:
		format = FormatYAML
		// An empty document decodes to io.EOF; treat it as an empty project.
		dec := yaml.NewDecoder(bytes.NewReader(expanded))
		if err := dec.Decode(&project); err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
		}
	}

	project.raw = content
	project.format = format
	project.normalize()

	return &project, nil
}

// decodeDocument decodes raw manifest bytes into a generic document tree.
func decodeDocument(raw []byte, format Format) (map[string]any, error) {
	doc := map[string]any{}
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse manifest TOML: %w", err)
		}
	default:
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
		}
	}
	return doc, nil
}
