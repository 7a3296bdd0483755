// Package events decouples engine components from the gateway that fans
// their notifications out: the engine is wired to a Relay at construction,
// and the gateway attaches once it exists.
package events

import (
	"sync"

	"github.com/zxytt/nft-auction-marketplace/pkg/types"
)

type Sink interface {
	Emit(types.Event)
}

// Relay forwards events to the attached sink, dropping them until one is
// attached.
type Relay struct {
	mu   sync.RWMutex
	sink Sink
}

func (r *Relay) SetSink(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = s
}

func (r *Relay) Emit(e types.Event) {
	r.mu.RLock()
	sink := r.sink
	r.mu.RUnlock()
	if sink != nil {
		sink.Emit(e)
	}
}
