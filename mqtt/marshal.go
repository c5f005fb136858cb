package mqtt

import "github.com/go-json-experiment/json"

// ValueMarshaler encodes a value of T as a payload.
type ValueMarshaler[T any] func(v T) ([]byte, error)

// ValueUnmarshaler decodes a payload into a value of T.
type ValueUnmarshaler[T any] func([]byte) (T, error)

var (
	StringMarshaler ValueMarshaler[string] = func(v string) ([]byte, error) {
		return []byte(v), nil
	}

	StringUnmarshaler ValueUnmarshaler[string] = func(payload []byte) (string, error) {
		return string(payload), nil
	}
)

// JsonValueMarshaler encodes values of T as json.
func JsonValueMarshaler[T any]() ValueMarshaler[T] {
	return func(v T) ([]byte, error) {
		return json.Marshal(v)
	}
}

// JsonValueUnmarshaler decodes json payloads into values of T.
func JsonValueUnmarshaler[T any]() ValueUnmarshaler[T] {
	return func(payload []byte) (T, error) {
		var v T
		err := json.Unmarshal(payload, &v)
		return v, err
	}
}
