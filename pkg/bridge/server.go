package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/nsd-bridge/nsd-go/pkg/nsderr"
	"github.com/nsd-bridge/nsd-go/pkg/wire"
)

// Server speaks the bridge protocol over a CBOR message stream.
//
// A response is always written before any event its request caused: the
// write lock is held while the request executes, so events produced
// meanwhile wait for it.
type Server struct {
	stream *wire.Stream
	logger *slog.Logger

	writeMu sync.Mutex
	closed  bool
}

// NewServer creates a server reading requests from r and writing responses
// and events to w.
func NewServer(r io.Reader, w io.Writer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{stream: wire.NewStream(r, w), logger: logger}
}

// SendEvent writes e to the stream. It is meant to be the bridge's OnEvent.
func (s *Server) SendEvent(e Event) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed {
		return
	}
	if err := s.stream.Write(e.Message()); err != nil {
		s.logger.Error("failed to write event", "event", e.Kind.String(), "handle", e.Handle, "error", err)
	}
}

// Serve handles requests until the input ends, ctx is cancelled or the
// stream fails. The end of input is not an error.
func (s *Server) Serve(ctx context.Context, b *Bridge) error {
	type result struct {
		msg *wire.Message
		err error
	}
	reads := make(chan result)
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		for {
			msg, err := s.stream.Read()
			select {
			case reads <- result{msg, err}:
			case <-stop:
				return
			}
			if err != nil && msg == nil {
				return
			}
		}
	}()

	for {
		var r result
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r = <-reads:
		}

		if r.err != nil {
			if r.msg == nil {
				if errors.Is(r.err, io.EOF) {
					return nil
				}
				return fmt.Errorf("read request: %w", r.err)
			}
			// Decoded but malformed: answer if it can be correlated.
			s.logger.Warn("malformed message", "error", r.err)
			if r.msg.Kind == wire.KindRequest && r.msg.ID != 0 {
				if err := s.reply(wire.NewErrorResponse(r.msg, nsderr.IllegalArgument.String(), r.err.Error())); err != nil {
					return err
				}
			}
			continue
		}

		if r.msg.Kind != wire.KindRequest {
			s.logger.Warn("ignoring non-request message", "kind", r.msg.Kind.String(), "method", r.msg.Method)
			continue
		}

		if err := s.handle(b, r.msg); err != nil {
			return err
		}
	}
}

func (s *Server) handle(b *Bridge, req *wire.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	resp := b.Handle(req)
	if resp.ID == 0 {
		s.logger.Warn("request without id, response dropped", "method", req.Method, "handle", req.Handle)
		return nil
	}
	if err := s.stream.Write(resp); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

func (s *Server) reply(resp *wire.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.stream.Write(resp); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

// Close stops event delivery to the stream.
func (s *Server) Close() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.closed = true
}
