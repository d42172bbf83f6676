package nsderr

// Op identifies the operation a native failure belongs to.
type Op uint8

const (
	OpStartDiscovery Op = iota
	OpStopDiscovery
	OpResolve
	OpRegister
	OpUnregister
)

// String returns the request method name of the operation.
func (o Op) String() string {
	switch o {
	case OpStartDiscovery:
		return "startDiscovery"
	case OpStopDiscovery:
		return "stopDiscovery"
	case OpResolve:
		return "resolve"
	case OpRegister:
		return "register"
	case OpUnregister:
		return "unregister"
	default:
		return "unknown"
	}
}

const genericMessage = "internal error"

// Map converts a native code into a protocol cause and message.
// It is total: unknown codes map to InternalError with a generic message.
func Map(code Code, op Op) (Cause, string) {
	switch code {
	case CodeAlreadyActive:
		return AlreadyActive, "operation already active"
	case CodeMaxLimit:
		return MaxLimit, "maximum outstanding requests reached"
	case CodeBadArgument:
		return IllegalArgument, "illegal argument"
	case CodePermissionDenied:
		return SecurityIssue, "missing multicast permission"
	case CodePortInUse:
		return InternalError, "port is already in use"
	case CodeCollision:
		if op == OpRegister {
			return InternalError, "service could not be published: name already in use"
		}
		return InternalError, "name already in use"
	case CodeActivityInProgress:
		return InternalError, "cannot process the request at this time"
	case CodeNotFound:
		return InternalError, "service could not be found on the network"
	case CodeCancelled:
		return InternalError, "client canceled the action"
	case CodeInvalid:
		return InternalError, "net service was improperly configured"
	case CodeTimeout:
		if op == OpResolve {
			return InternalError, "resolve timed out"
		}
		return InternalError, "net service has timed out"
	case CodeMissingRequiredConfiguration:
		return InternalError, "missing required configuration"
	case CodeUnsupported:
		return InternalError, op.String() + " is not supported by the discovery engine"
	case CodeShutdown:
		return InternalError, "discovery bridge is shutting down"
	default:
		return InternalError, genericMessage
	}
}
