package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/roach88/logfire/internal/ir"
	"github.com/roach88/logfire/internal/schema"
	"github.com/roach88/logfire/internal/script"
)

// Create validates and stores one event and returns its id.
//
// The event name is checked for format, category and event in that order,
// then data is validated against the declared fields. Only then is the
// create script run, which assigns the id, defaults $date to now, writes
// the hash, the set membership and every numeric index in one step.
func (s *Store) Create(ctx context.Context, rawEvent string, data ir.Object) (int64, error) {
	name, err := s.registry.Resolve(rawEvent)
	if err != nil {
		return 0, err
	}
	if data == nil {
		data = ir.Object{}
	}
	if err := s.registry.ValidateEventData(name, data); err != nil {
		return 0, err
	}

	payload, err := scriptData(data)
	if err != nil {
		return 0, fmt.Errorf("create event: %w", err)
	}

	id, err := s.exec.RunInt(ctx, script.Create, script.CreateArgs{
		Prefix:     s.prefix,
		Event:      name,
		Data:       payload,
		Fields:     s.registry.EventFieldTypes(name),
		Now:        s.clock().Unix(),
		StampEvent: s.stamp,
	})
	if err != nil {
		return 0, fmt.Errorf("create event: %w", err)
	}

	s.metrics.EventCreated(name)
	s.logger.Debug("event created", "event", name, "id", id)
	return id, nil
}

// scriptData converts validated values into what the create script stores.
// Numbers and timestamps are formatted here at full precision; objects and
// arrays become canonical JSON strings. $id is always assigned by the script.
func scriptData(data ir.Object) (map[string]any, error) {
	out := make(map[string]any, len(data))
	for field, v := range data {
		if field == schema.FieldID {
			continue
		}
		switch val := v.(type) {
		case ir.Number:
			out[field] = ir.FormatNumber(float64(val))
		case ir.Timestamp:
			out[field] = strconv.FormatInt(val.Unix(), 10)
		case ir.Object, ir.Array:
			b, err := ir.MarshalCanonical(v)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", field, err)
			}
			out[field] = string(b)
		default:
			out[field] = ir.Native(v)
		}
	}
	return out, nil
}
