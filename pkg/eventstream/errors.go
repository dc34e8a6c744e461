package eventstream

import "errors"

// ErrNilDayEvent indicates a nil day event payload was provided to a publisher.
var ErrNilDayEvent = errors.New("nil day extracted event")
