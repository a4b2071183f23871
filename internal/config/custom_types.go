// Package config handles application configuration.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Percent is a fraction in [0, 1] that can be unmarshalled from a plain
// number (0.2) or a percentage string ("20%").
type Percent float64

// UnmarshalYAML implements the yaml.Unmarshaler interface for Percent.
func (p *Percent) UnmarshalYAML(value *yaml.Node) error {
	switch value.Tag {
	case "!!float", "!!int":
		f, err := strconv.ParseFloat(value.Value, 64)
		if err != nil {
			return err
		}
		*p = Percent(f)
	case "!!str":
		s := strings.TrimSpace(value.Value)
		if cut, ok := strings.CutSuffix(s, "%"); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(cut), 64)
			if err != nil {
				return fmt.Errorf("cannot unmarshal %q into Percent", value.Value)
			}
			*p = Percent(f / 100)
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("cannot unmarshal %q into Percent", value.Value)
		}
		*p = Percent(f)
	default:
		return fmt.Errorf("cannot unmarshal %s into Percent", value.Tag)
	}
	return nil
}
