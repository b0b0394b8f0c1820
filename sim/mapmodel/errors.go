package mapmodel

import "errors"

// ErrInvalidMap wraps every map validation failure.
var ErrInvalidMap = errors.New("invalid map")
