package utils

import (
	"encoding"
	"reflect"

	"github.com/go-viper/mapstructure/v2"
	"sigs.k8s.io/yaml"
)

// TextUnmarshalerHookFunc allows koanf to decode strings into custom
// types implementing encoding.TextUnmarshaler.
func TextUnmarshalerHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		result := reflect.New(t).Interface()
		unmarshaller, ok := result.(encoding.TextUnmarshaler)
		if !ok {
			return data, nil
		}

		text := []byte(reflect.ValueOf(data).String())
		if err := unmarshaller.UnmarshalText(text); err != nil {
			return nil, err
		}
		return result, nil
	}
}

// KubeYAML implements a YAML parser for koanf file providers.
type KubeYAML struct{}

// Unmarshal parses the given YAML bytes.
func (p *KubeYAML) Unmarshal(b []byte) (map[string]any, error) {
	var out map[string]any
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// Marshal marshals the given config map to YAML bytes.
func (p *KubeYAML) Marshal(o map[string]any) ([]byte, error) {
	return yaml.Marshal(o)
}
