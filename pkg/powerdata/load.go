package powerdata

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/iwvelando/mpopf/pkg/constants"
	"gopkg.in/yaml.v3"
)

// Case file formats.
const (
	FormatMatpower = "matpower"
	FormatJSON     = "json"
	FormatYAML     = "yaml"
)

// FormatFromPath infers the case file format from the file extension.
func FormatFromPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m":
		return FormatMatpower, nil
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported case file extension %q", filepath.Ext(path))
	}
}

// Load reads and validates a case file.
func Load(path string) (*Network, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open case file %s: %w", path, err)
	}
	defer f.Close()

	n, err := Decode(f, format)
	if err != nil {
		return nil, fmt.Errorf("failed to load case file %s: %w", path, err)
	}
	if n.Name == "" {
		n.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return n, nil
}

// Decode reads a case in the given format and validates it. JSON documents
// are decoded with the YAML decoder, which accepts them as flow-style YAML.
func Decode(r io.Reader, format string) (*Network, error) {
	var n *Network
	switch format {
	case FormatMatpower:
		parsed, err := ParseMatpower(r)
		if err != nil {
			return nil, err
		}
		n = parsed
	case FormatJSON, FormatYAML:
		n = &Network{}
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(n); err != nil {
			return nil, fmt.Errorf("failed to decode %s case: %w", format, err)
		}
		n.applyDefaults()
	default:
		return nil, fmt.Errorf("unsupported case format %q", format)
	}

	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

// applyDefaults numbers generators and branches by position when the case
// leaves their ids out.
func (n *Network) applyDefaults() {
	for i := range n.Generators {
		if n.Generators[i].ID == 0 {
			n.Generators[i].ID = i + 1
		}
	}
	for i := range n.Branches {
		if n.Branches[i].ID == 0 {
			n.Branches[i].ID = i + 1
		}
	}
}

// UnmarshalYAML decodes a bus with a flat voltage and 0.9-1.1 p.u. limits
// unless the document says otherwise.
func (b *Bus) UnmarshalYAML(node *yaml.Node) error {
	type plain Bus
	raw := plain{Type: BusPQ, Vm: 1, Vmin: 0.9, Vmax: 1.1}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*b = Bus(raw)
	return nil
}

// UnmarshalYAML decodes a generator that is in service unless stated.
func (g *Generator) UnmarshalYAML(node *yaml.Node) error {
	type plain Generator
	raw := plain{Status: 1, Vg: 1}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*g = Generator(raw)
	return nil
}

// UnmarshalYAML decodes a branch that is in service with unconstrained angle
// difference unless stated.
func (br *Branch) UnmarshalYAML(node *yaml.Node) error {
	type plain Branch
	raw := plain{Status: 1, AngMin: -constants.MaxAngleDifferenceDeg, AngMax: constants.MaxAngleDifferenceDeg}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*br = Branch(raw)
	return nil
}
