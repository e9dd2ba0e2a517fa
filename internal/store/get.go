package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/logfire/internal/ir"
	"github.com/roach88/logfire/internal/schema"
)

// Record is a stored event: every field plus $id, $date and $event.
type Record map[string]any

// Get loads one event by id. Values are coerced back to their declared
// types using the event type's field map.
func (s *Store) Get(ctx context.Context, rawID string) (Record, error) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return nil, ir.Errorf(ir.ErrCodeInvalidID, "Id %q is invalid.", rawID)
	}

	hash, err := s.client.HGetAll(ctx, s.key("events:", strconv.FormatInt(id, 10))).Result()
	if err != nil {
		return nil, fmt.Errorf("get event %d: %w", id, err)
	}
	if len(hash) == 0 {
		return nil, ir.Errorf(ir.ErrCodeNotFound, "Event with id %d does not exist.", id)
	}

	event := hash[schema.FieldEvent]
	if event == "" {
		event, err = s.lookupEventType(ctx, id)
		if err != nil {
			return nil, err
		}
	}

	types := s.registry.EventFieldTypes(event)
	rec := make(Record, len(hash)+1)
	for field, raw := range hash {
		rec[field] = coerce(raw, types[field])
	}
	if event != "" {
		rec[schema.FieldEvent] = event
	}
	return rec, nil
}

// lookupEventType finds the membership set holding id. It is used when
// events are stored without a $event field.
func (s *Store) lookupEventType(ctx context.Context, id int64) (string, error) {
	names := s.registry.Names()
	member := strconv.FormatInt(id, 10)

	cmds := make([]*redis.BoolCmd, len(names))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, name := range names {
			cmds[i] = pipe.SIsMember(ctx, s.key("set:", name), member)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("resolve event type of %d: %w", id, err)
	}

	for i, cmd := range cmds {
		if cmd.Val() {
			return names[i], nil
		}
	}
	return "", nil
}

// coerce converts a stored hash value back to its declared type. Unknown
// fields and unparseable values are returned as strings.
func coerce(raw string, t ir.FieldType) any {
	switch t {
	case ir.TypeNumber, ir.TypeTimestamp:
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	case ir.TypeBoolean:
		return raw == "true"
	case ir.TypeObject:
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			return v
		}
	}
	return raw
}
