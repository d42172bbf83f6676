package bridge

import (
	"fmt"
	"time"

	"github.com/nsd-bridge/nsd-go/pkg/discovery"
	"github.com/nsd-bridge/nsd-go/pkg/log"
	"github.com/nsd-bridge/nsd-go/pkg/nsderr"
	"github.com/nsd-bridge/nsd-go/pkg/txt"
	"github.com/nsd-bridge/nsd-go/pkg/wire"
)

// Handle executes a request and returns its response. It never panics: a
// fault inside a request is reported as an InternalError response.
func (b *Bridge) Handle(req *wire.Message) (resp *wire.Message) {
	start := time.Now()
	b.logMessage(log.DirectionIn, req, nil)

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("request handler panicked", "method", req.Method, "handle", req.Handle, "panic", r)
			resp = wire.NewErrorResponse(req, nsderr.InternalError.String(), fmt.Sprintf("%s: %v", req.Method, r))
		}
		elapsed := time.Since(start)
		b.logMessage(log.DirectionOut, resp, &elapsed)
	}()

	if err := b.dispatch(req); err != nil {
		cause := nsderr.CauseOf(err)
		b.logger.Debug("request rejected", "method", req.Method, "handle", req.Handle, "cause", cause.String(), "error", err)
		return wire.NewErrorResponse(req, cause.String(), nsderr.MessageOf(err))
	}
	return wire.NewResponse(req)
}

func (b *Bridge) dispatch(req *wire.Message) error {
	if req.Kind != wire.KindRequest {
		return nsderr.Newf(nsderr.IllegalArgument, "expected request, got %s", req.Kind)
	}

	switch req.Method {
	case wire.MethodStartDiscovery:
		return b.StartDiscovery(req.Handle, req.ServiceType)
	case wire.MethodStopDiscovery:
		return b.StopDiscovery(req.Handle)
	case wire.MethodResolve:
		return b.Resolve(req.Handle, descriptorFromMessage(req))
	case wire.MethodRegister:
		return b.Register(req.Handle, descriptorFromMessage(req))
	case wire.MethodUnregister:
		return b.Unregister(req.Handle)
	default:
		return nsderr.Newf(nsderr.IllegalArgument, "unknown method: %s", req.Method)
	}
}

// descriptorFromMessage reads the service fields of msg.
func descriptorFromMessage(msg *wire.Message) discovery.Descriptor {
	d := discovery.Descriptor{
		Name: msg.ServiceName,
		Type: msg.ServiceType,
		Host: msg.ServiceHost,
		Port: msg.ServicePort,
	}
	if msg.ServiceTXT != nil {
		d.TXT = txt.Record(msg.ServiceTXT).Clone()
	}
	return d
}
