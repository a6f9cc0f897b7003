package domain

import "sync"

// Payload defers loading an item's bytes until first access. The load
// function runs at most once; its result is cached for later reads.
type Payload struct {
	once sync.Once
	load func() ([]byte, error)
	data []byte
	err  error
}

// NewPayload wraps a load function into a lazy payload.
func NewPayload(load func() ([]byte, error)) *Payload {
	return &Payload{load: load}
}

// PayloadFromBytes returns an already-materialized payload.
func PayloadFromBytes(data []byte) *Payload {
	return &Payload{data: data, load: nil}
}

// Bytes returns the payload data, loading it on first call.
func (p *Payload) Bytes() ([]byte, error) {
	if p.load == nil {
		return p.data, p.err
	}
	p.once.Do(func() {
		p.data, p.err = p.load()
	})
	return p.data, p.err
}
