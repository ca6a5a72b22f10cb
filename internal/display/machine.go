package display

import (
	"encoding/json"
	"io"

	"github.com/quasar/pmc/internal/events"
)

// wireEvent is the machine output's wire shape for one events.Event
// (spec.md §6: "an ordered sequence of tagged records ... consumers rely
// on tags, not prose").
type wireEvent struct {
	Kind    events.Kind `json:"kind"`
	Data    any         `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// RunMachine drains events from ch and writes one JSON object per line to
// w (newline-delimited JSON), in emission order. Returns once ch closes.
func RunMachine(w io.Writer, ch <-chan events.Event) error {
	enc := json.NewEncoder(w)
	for e := range ch {
		if err := enc.Encode(wireEvent{Kind: e.Kind, Data: e.Data, Message: e.Message}); err != nil {
			return err
		}
	}
	return nil
}
