package protocol

import (
	"fmt"

	"go.uber.org/zap"
)

// HandlerFunc is the callback signature for message handlers. The
// session pointer is passed as an opaque interface to avoid import
// cycles; handlers cast it back. The returned message is the single
// direct response (nil means the handler already responded).
type HandlerFunc func(sess any, req *Request) M

// AuthGate verifies the request's session token before an authenticated
// handler runs. A nil return means the request may proceed; otherwise
// the returned message is sent instead of calling the handler.
type AuthGate func(sess any, req *Request) M

type handlerEntry struct {
	fn       HandlerFunc
	needAuth bool
}

// Registry maps message types to handlers with session-based access
// control and panic isolation.
type Registry struct {
	handlers map[string]*handlerEntry
	gate     AuthGate
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]*handlerEntry),
		log:      log,
	}
}

// SetAuthGate installs the session check applied to handlers registered
// with needAuth.
func (reg *Registry) SetAuthGate(gate AuthGate) {
	reg.gate = gate
}

// Register maps a message type to a handler. Handlers registered with
// needAuth only run after the auth gate passes.
func (reg *Registry) Register(msgType string, needAuth bool, fn HandlerFunc) {
	reg.handlers[msgType] = &handlerEntry{fn: fn, needAuth: needAuth}
}

// Dispatch decodes one text message, validates it, and routes it to the
// registered handler. It always returns the single direct response the
// worker should write back (nil only when the handler already replied).
func (reg *Registry) Dispatch(sess any, data []byte) M {
	req, err := ParseRequest(data)
	if err != nil {
		reg.log.Debug("unparseable message", zap.Error(err))
		return Error(ErrParse, "Invalid JSON message")
	}
	if req.Type == "" {
		return Error(ErrInvalidMessage, "Message must contain 'type' field")
	}

	entry, ok := reg.handlers[req.Type]
	if !ok {
		reg.log.Debug("unknown message type", zap.String("type", req.Type))
		return Error(ErrUnknownType, "Unknown message type: "+req.Type)
	}

	if entry.needAuth && reg.gate != nil {
		if resp := reg.gate(sess, req); resp != nil {
			return resp
		}
	}

	return reg.safeCall(entry, sess, req)
}

// safeCall executes a handler with panic recovery so one bad request
// cannot take down the per-client worker loop.
func (reg *Registry) safeCall(entry *handlerEntry, sess any, req *Request) (resp M) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("handler panic recovered",
				zap.String("type", req.Type),
				zap.Any("panic", rec),
			)
			resp = Error(ErrInternal, fmt.Sprintf("Internal error handling %s", req.Type))
		}
	}()
	return entry.fn(sess, req)
}
