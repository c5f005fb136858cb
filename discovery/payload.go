package discovery

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

var (
	// ErrValueRequired is returned when a required member holds its zero value.
	ErrValueRequired = errors.New("value is required")
	// ErrTopicRequired is returned when a required topic is empty, usually because its mqtt.Value is nil.
	ErrTopicRequired = errors.New("topic is required")

	// Marshalers adapts standard library types to the discovery schema: URLs are strings and durations are whole
	// seconds.
	Marshalers = json.JoinMarshalers(
		json.MarshalToFunc(func(e *jsontext.Encoder, u *url.URL) error {
			return e.WriteToken(jsontext.String(u.String()))
		}),
		json.MarshalToFunc(func(e *jsontext.Encoder, d time.Duration) error {
			return e.WriteToken(jsontext.Int(int64(d.Seconds())))
		}),
	)
)

// Payload writes the members of one json object of a discovery payload. The first error sticks: later calls do
// nothing and Close reports it, so callers write every member and check once.
type Payload struct {
	e   *jsontext.Encoder
	err error
}

// Open starts an object on e.
func Open(e *jsontext.Encoder) *Payload {
	return &Payload{e: e, err: e.WriteToken(jsontext.BeginObject)}
}

// Close ends the object and returns the first error of the payload.
func (p *Payload) Close() error {
	if p.err == nil {
		p.err = p.e.WriteToken(jsontext.EndObject)
	}

	return p.err
}

// Err returns the first error written so far.
func (p *Payload) Err() error {
	return p.err
}

// Member writes key and v, encoding v with Marshalers.
func (p *Payload) Member(key string, v any) *Payload {
	if p.err != nil {
		return p
	}

	if p.err = p.e.WriteToken(jsontext.String(key)); p.err == nil {
		p.err = json.MarshalEncode(p.e, v, json.WithMarshalers(Marshalers))
	}

	return p
}

// Null writes key with a json null.
func (p *Payload) Null(key string) *Payload {
	if p.err != nil {
		return p
	}

	if p.err = p.e.WriteToken(jsontext.String(key)); p.err == nil {
		p.err = p.e.WriteToken(jsontext.Null)
	}

	return p
}

// Topic writes an optional topic. Empty topics are left out.
func (p *Payload) Topic(key, topic string) *Payload {
	if topic == "" {
		return p
	}

	return p.Member(key, topic)
}

// RequiredTopic writes a topic, failing the payload with ErrTopicRequired if it is empty. what names the member in the
// error.
func (p *Payload) RequiredTopic(what, key, topic string) *Payload {
	if topic == "" {
		return p.fail(fmt.Errorf("%s: %w", what, ErrTopicRequired))
	}

	return p.Member(key, topic)
}

// Objects writes key with an object holding every entry of members, in key order so repeated payloads are identical.
func (p *Payload) Objects(key string, members map[string]json.MarshalerTo) *Payload {
	if p.err != nil {
		return p
	}

	if p.err = p.e.WriteToken(jsontext.String(key)); p.err != nil {
		return p
	}

	nested := Open(p.e)
	for _, k := range slices.Sorted(maps.Keys(members)) {
		if err := nested.Member(k, members[k]).Err(); err != nil {
			return p.fail(fmt.Errorf("%s: %w", k, err))
		}
	}

	return p.fail(nested.Close())
}

func (p *Payload) fail(err error) *Payload {
	if p.err == nil && err != nil {
		p.err = err
	}

	return p
}

// Optional writes key and v unless v is its zero value.
func Optional[T comparable](p *Payload, key string, v T) {
	var zero T
	if v != zero {
		p.Member(key, v)
	}
}

// Required writes key and v, failing the payload with ErrValueRequired if v is its zero value. what names the member in
// the error.
func Required[T comparable](p *Payload, what, key string, v T) {
	var zero T
	if v == zero {
		p.fail(fmt.Errorf("%s: %w", what, ErrValueRequired))
		return
	}

	p.Member(key, v)
}
