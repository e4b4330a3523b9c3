package stream

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// Event is one decoded frame.
type Event struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Decode unmarshals the frame payload into v.
func (ev Event) Decode(v any) error {
	return json.Unmarshal(ev.Data, v)
}

// ReadEvents decodes frames from r until EOF, calling fn for each. The
// "result" alias is reported as KindEnrich. fn returning false stops reading.
func ReadEvents(r io.Reader, fn func(Event) bool) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)

	var (
		kind Kind
		data strings.Builder
	)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if kind == "" && data.Len() == 0 {
				continue
			}
			if kind == KindResult {
				kind = KindEnrich
			}
			ev := Event{Kind: kind, Data: json.RawMessage(data.String())}
			kind = ""
			data.Reset()
			if !fn(ev) {
				return nil
			}
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "event:"):
			kind = Kind(strings.TrimSpace(strings.TrimPrefix(line, "event:")))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return sc.Err()
}

// Collect reads every frame from r.
func Collect(r io.Reader) ([]Event, error) {
	var out []Event
	err := ReadEvents(r, func(ev Event) bool {
		out = append(out, ev)
		return true
	})
	return out, err
}
