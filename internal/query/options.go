package query

import (
	"strconv"
	"strings"

	"github.com/roach88/logfire/internal/ir"
)

// Options is a query request as received from a client.
//
// Where maps a field to either a literal (equality) or an operator object
// such as {"$gt": 1, "$lt": 10}.
type Options struct {
	Events []string
	Start  *int64
	End    *int64
	Select []string
	Group  string
	Where  map[string]ir.Value
}

// ParseOptions decodes a JSON query request.
//
// events and select accept either an array of strings or a comma separated
// string. start and end accept numbers or numeric strings and are truncated
// to whole seconds.
func ParseOptions(data []byte) (Options, error) {
	obj, err := ir.DecodeObject(data)
	if err != nil {
		return Options{}, ir.Errorf(ir.ErrCodeInvalidRequest, "Query is not a valid JSON object.")
	}
	return OptionsFromObject(obj)
}

// OptionsFromObject builds Options from an already decoded request.
func OptionsFromObject(obj ir.Object) (Options, error) {
	var opts Options
	var err error

	if opts.Events, err = stringList(obj, "events"); err != nil {
		return Options{}, err
	}
	if opts.Select, err = stringList(obj, "select"); err != nil {
		return Options{}, err
	}
	if opts.Start, err = seconds(obj, "start"); err != nil {
		return Options{}, err
	}
	if opts.End, err = seconds(obj, "end"); err != nil {
		return Options{}, err
	}

	switch v := obj["group"].(type) {
	case nil, ir.Null:
	case ir.String:
		opts.Group = string(v)
	default:
		return Options{}, ir.Errorf(ir.ErrCodeInvalidRequest, "`group` must be a string.")
	}

	switch v := obj["where"].(type) {
	case nil, ir.Null:
	case ir.Object:
		opts.Where = map[string]ir.Value(v)
	default:
		return Options{}, ir.Errorf(ir.ErrCodeInvalidRequest, "`where` must be an object.")
	}

	return opts, nil
}

func stringList(obj ir.Object, key string) ([]string, error) {
	switch v := obj[key].(type) {
	case nil, ir.Null:
		return nil, nil
	case ir.String:
		return splitList(string(v)), nil
	case ir.Array:
		out := make([]string, 0, len(v))
		for _, elem := range v {
			s, ok := elem.(ir.String)
			if !ok {
				return nil, ir.Errorf(ir.ErrCodeInvalidRequest, "`%s` must only contain strings.", key)
			}
			if trimmed := strings.TrimSpace(string(s)); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out, nil
	default:
		return nil, ir.Errorf(ir.ErrCodeInvalidRequest, "`%s` must be a string or an array of strings.", key)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func seconds(obj ir.Object, key string) (*int64, error) {
	var n int64
	switch v := obj[key].(type) {
	case nil, ir.Null:
		return nil, nil
	case ir.Number:
		n = int64(v)
	case ir.Timestamp:
		n = v.Unix()
	case ir.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
		if err != nil {
			return nil, ir.Errorf(ir.ErrCodeInvalidRequest, "`%s` must be a number.", key)
		}
		n = int64(f)
	default:
		return nil, ir.Errorf(ir.ErrCodeInvalidRequest, "`%s` must be a number.", key)
	}
	return &n, nil
}
