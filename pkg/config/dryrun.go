package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// DryRun redirects or suppresses outbound traffic. It decodes from a boolean
// (true suppresses everything), a single number or a list of numbers
// (traffic is redirected to them).
type DryRun struct {
	Skip    bool
	Numbers []string
}

// Enabled reports whether any dry-run policy is in effect
func (d DryRun) Enabled() bool {
	return d.Skip || len(d.Numbers) > 0
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *DryRun) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!bool" {
			var b bool
			if err := value.Decode(&b); err != nil {
				return err
			}
			*d = DryRun{Skip: b}
			return nil
		}
		if value.Tag == "!!null" {
			*d = DryRun{}
			return nil
		}
		*d = DryRun{Numbers: compact([]string{value.Value})}
		return nil
	case yaml.SequenceNode:
		var numbers []string
		if err := value.Decode(&numbers); err != nil {
			return eris.Wrap(err, "dry must be a list of phone numbers")
		}
		*d = DryRun{Numbers: compact(numbers)}
		return nil
	default:
		return eris.Errorf("dry: unsupported value at line %d", value.Line)
	}
}

// MarshalYAML implements yaml.Marshaler
func (d DryRun) MarshalYAML() (interface{}, error) {
	switch {
	case d.Skip:
		return true, nil
	case len(d.Numbers) == 1:
		return d.Numbers[0], nil
	case len(d.Numbers) > 1:
		return d.Numbers, nil
	default:
		return false, nil
	}
}

// ParseDryRun reads the environment form: "true"/"false" or a comma
// separated list of numbers.
func ParseDryRun(s string) DryRun {
	s = strings.TrimSpace(s)
	if s == "" {
		return DryRun{}
	}
	switch strings.ToLower(s) {
	case "true":
		return DryRun{Skip: true}
	case "false":
		return DryRun{}
	}
	return DryRun{Numbers: compact(strings.Split(s, ","))}
}

func compact(in []string) []string {
	var out []string
	for _, n := range in {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}
