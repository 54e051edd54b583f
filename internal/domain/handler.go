package domain

import "context"

// CapabilityHandler is the unit each domain module implements. Execute must
// not panic and must represent internal failures in the returned error; the
// coordinator additionally defends against panics and timeouts.
type CapabilityHandler interface {
	Descriptor() HandlerDescriptor
	Execute(ctx context.Context, req *Request) (HandlerPayload, error)
}
