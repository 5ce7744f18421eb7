// Package payload decodes bus message bodies into typed commands.
//
// Publishers (notably home-automation templates) sometimes wrap the JSON body
// in one extra layer of quotes or escape its inner quotes. Decode tolerates
// exactly one such layer; anything deeper is rejected.
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Object is a decoded JSON object with its values left raw for per-field coercion.
type Object map[string]json.RawMessage

// DecodeError reports a payload that could not be turned into a JSON object.
type DecodeError struct {
	Payload string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode payload %q: %v", truncate(e.Payload, 64), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode trims raw, strips one matching layer of single or double quotes,
// parses it as a JSON object and, on failure, retries exactly once with
// escaped quotes (\") unescaped.
func Decode(raw []byte) (Object, error) {
	text := strings.TrimSpace(string(raw))
	if len(text) >= 2 {
		first, last := text[0], text[len(text)-1]
		if first == last && (first == '\'' || first == '"') {
			text = text[1 : len(text)-1]
		}
	}

	obj, err := parseObject(text)
	if err == nil {
		return obj, nil
	}

	unescaped := strings.ReplaceAll(text, `\"`, `"`)
	obj, err = parseObject(unescaped)
	if err != nil {
		return nil, &DecodeError{Payload: string(raw), Err: err}
	}
	return obj, nil
}

func parseObject(text string) (Object, error) {
	var obj Object
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("payload is not a JSON object")
	}
	return obj, nil
}

// has reports whether key is present with a non-null value.
func (o Object) has(key string) bool {
	v, ok := o[key]
	return ok && !bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
