package edge

import "errors"

// ErrStaleView is reported by a view whose source was updated before the
// view first read its payload rows. Fetch a new view.
var ErrStaleView = errors.New("edge: view is stale")
