package harness

import (
	"fmt"

	"github.com/roach88/promote/internal/model"
)

// argError reports a malformed step argument.
type argError struct {
	msg string
}

func (e *argError) Error() string {
	return "invalid args: " + e.msg
}

// args wraps a step's decoded YAML arguments.
type args map[string]any

func (a args) str(key string) (string, error) {
	s, ok := a[key].(string)
	if !ok || s == "" {
		return "", &argError{msg: fmt.Sprintf("%s is required", key)}
	}
	return s, nil
}

func (a args) optStr(key string) string {
	s, _ := a[key].(string)
	return s
}

func (a args) optBool(key string) bool {
	b, _ := a[key].(bool)
	return b
}

func (a args) int(key string) (int64, error) {
	switch n := a[key].(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	}
	return 0, &argError{msg: fmt.Sprintf("%s must be an integer", key)}
}

func (a args) optInt(key string) int64 {
	n, _ := a.int(key)
	return n
}

func (a args) strs(key string) ([]string, error) {
	out, err := a.optStrsErr(key)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, &argError{msg: fmt.Sprintf("%s is required", key)}
	}
	return out, nil
}

func (a args) optStrs(key string) []string {
	out, _ := a.optStrsErr(key)
	return out
}

func (a args) optStrsErr(key string) ([]string, error) {
	raw, ok := a[key]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, &argError{msg: fmt.Sprintf("%s must be a list", key)}
	}
	out := make([]string, len(list))
	for i, v := range list {
		s, ok := v.(string)
		if !ok {
			return nil, &argError{msg: fmt.Sprintf("%s[%d] must be a string", key, i)}
		}
		out[i] = s
	}
	return out, nil
}

func (a args) obj(key string) map[string]any {
	m, _ := a[key].(map[string]any)
	return m
}

func (a args) entity(key string) (model.EntityRef, error) {
	s, err := a.str(key)
	if err != nil {
		return model.EntityRef{}, err
	}
	ref, err := model.ParseEntityRef(s)
	if err != nil {
		return model.EntityRef{}, &argError{msg: err.Error()}
	}
	return ref, nil
}
