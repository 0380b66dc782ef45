package queue

import "errors"

// ErrStoreUnavailable wraps write failures against the durable store. A caller
// seeing it must not assume the job was queued.
var ErrStoreUnavailable = errors.New("store unavailable")
