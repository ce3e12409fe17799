package channel

import (
	"github.com/calloutcrm/delivery/internal/model"
)

// Registry maps a channel to its provider adapter. It is built once at
// startup; a channel without an adapter resolves to (nil, false), which the
// dispatcher reports as a terminal "no integration" failure.
type Registry struct {
	senders map[model.Channel]Sender
}

func NewRegistry() *Registry {
	return &Registry{senders: make(map[model.Channel]Sender)}
}

func (r *Registry) Register(ch model.Channel, s Sender) {
	r.senders[ch] = s
}

func (r *Registry) Resolve(ch model.Channel) (Sender, bool) {
	s, ok := r.senders[ch]
	return s, ok
}

// Channels lists the registered channels, for admin introspection.
func (r *Registry) Channels() []model.Channel {
	out := make([]model.Channel, 0, len(r.senders))
	for ch := range r.senders {
		out = append(out, ch)
	}
	return out
}
