package value

import "github.com/google/uuid"

// NewUserdata wraps an opaque host pointer in a Userdata (a plain Go
// allocation, not pooled),
// tagging it with a UUID so host modules (internal/stdlib) can key
// side tables (open db handles, websocket connections) by a host-visible
// string instead of leaking the Go pointer into script-reachable state.
func NewUserdata(data any) *Userdata {
	return &Userdata{
		ID:   uuid.NewString(),
		Data: data,
		Meta: Nil(),
	}
}
