package events

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// Schema decodes and validates raw payloads for the known event kinds.
// Kinds without a schema pass through untouched.
type Schema struct {
	validate *validator.Validate
}

// NewSchema creates a payload schema
func NewSchema() *Schema {
	return &Schema{validate: validator.New()}
}

// Normalize converts payload into the typed value registered for kind.
// payload may already be the typed value (or a pointer to it), or a
// map as delivered by a native bridge.
func (s *Schema) Normalize(kind Kind, payload any) (any, error) {
	switch kind {
	case KindRecordingProgress:
		return normalizeAs[Progress](s, kind, payload)
	case KindAudioPeakPower:
		return normalizeAs[PeakPower](s, kind, payload)
	case KindRecordingFinished:
		return normalizeAs[Finished](s, kind, payload)
	case KindRecordingError:
		return normalizeAs[Failure](s, kind, payload)
	case KindPlayerFinished:
		return normalizeAs[PlayerFinished](s, kind, payload)
	default:
		return payload, nil
	}
}

func normalizeAs[T any](s *Schema, kind Kind, payload any) (any, error) {
	var out T

	switch p := payload.(type) {
	case T:
		out = p
	case *T:
		if p == nil {
			return nil, fmt.Errorf("%s: nil payload", kind)
		}
		out = *p
	case nil:
		return nil, fmt.Errorf("%s: nil payload", kind)
	default:
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &out,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: failed to create decoder: %w", kind, err)
		}
		if err := decoder.Decode(payload); err != nil {
			return nil, fmt.Errorf("%s: failed to decode payload: %w", kind, err)
		}
	}

	if err := s.validate.Struct(out); err != nil {
		return nil, fmt.Errorf("%s: invalid payload: %w", kind, err)
	}

	return out, nil
}
