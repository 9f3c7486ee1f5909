package httphost

import (
	"encoding/json"
	"io"
	"mime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Encoder writes response bodies in one media type.
type Encoder interface {
	ContentType() string
	Encode(w io.Writer, v any) error
}

type jsonEncoder struct{}

func (jsonEncoder) ContentType() string { return "application/json" }

func (jsonEncoder) Encode(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

type yamlEncoder struct{}

func (yamlEncoder) ContentType() string { return "application/yaml" }

func (yamlEncoder) Encode(w io.Writer, v any) error {
	if raw, ok := v.(json.RawMessage); ok {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return err
		}
		v = decoded
	}
	enc := yaml.NewEncoder(w)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// encoders holds the negotiable encoders; index 0 (JSON) is the default.
type encoders []Encoder

func newEncoders(extra []Encoder) encoders {
	out := make(encoders, 0, 2+len(extra))
	out = append(out, jsonEncoder{}, yamlEncoder{})
	return append(out, extra...)
}

// negotiate picks the encoder with the highest quality in accept. An empty
// header or */* selects JSON; an explicit header with no match reports
// false.
func (e encoders) negotiate(accept string) (Encoder, bool) {
	if accept == "" {
		return e[0], true
	}

	var best Encoder
	bestQ := -1.0
	for part := range strings.SplitSeq(accept, ",") {
		mediaType, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		q := 1.0
		if qs, ok := params["q"]; ok {
			if parsed, err := strconv.ParseFloat(qs, 64); err == nil {
				q = parsed
			}
		}
		if q <= 0 || q <= bestQ {
			continue
		}
		if mediaType == "*/*" || mediaType == "application/*" {
			best, bestQ = e[0], q
			continue
		}
		for _, enc := range e {
			if enc.ContentType() == mediaType {
				best, bestQ = enc, q
				break
			}
		}
	}
	return best, best != nil
}
