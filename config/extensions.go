package config

import (
	"github.com/grovetools/bridge/errors"
	"github.com/mitchellh/mapstructure"
)

// UnmarshalExtension decodes a named section of the Extensions map into out.
// Absent sections are not an error; out keeps its zero values.
func (c *Config) UnmarshalExtension(name string, out interface{}) error {
	if c == nil || c.Extensions == nil {
		return nil
	}
	raw, ok := c.Extensions[name]
	if !ok {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to build extension decoder").
			WithDetail("extension", name)
	}
	if err := decoder.Decode(raw); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to decode extension section").
			WithDetail("extension", name)
	}
	return nil
}
