package kg

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// DecodeDisease reads a Disease from node properties as returned by any
// graph transport. List properties may arrive as []any or as a single string.
func DecodeDisease(props map[string]any) (Disease, error) {
	var d Disease
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &d,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToSliceHookFunc("、"),
	})
	if err != nil {
		return Disease{}, err
	}
	if err := dec.Decode(props); err != nil {
		return Disease{}, fmt.Errorf("kg: decode disease: %w", err)
	}
	if d.Name == "" {
		return Disease{}, fmt.Errorf("kg: decode disease: missing name")
	}
	return d, nil
}
