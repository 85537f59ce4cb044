package scrape

import (
	"context"
	"errors"
)

// MultiSink fans a record out to several sinks. Every sink sees every record;
// errors are joined.
type MultiSink []Sink

// Save implements Sink.
func (m MultiSink) Save(ctx context.Context, p *Player) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Save(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Flush flushes every sink that buffers.
func (m MultiSink) Flush(ctx context.Context) error {
	var errs []error
	for _, s := range m {
		if f, ok := s.(Flusher); ok {
			if err := f.Flush(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, p *Player) error

// Save implements Sink.
func (f SinkFunc) Save(ctx context.Context, p *Player) error {
	return f(ctx, p)
}
