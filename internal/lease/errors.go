package lease

import "errors"

var ErrLost = errors.New("lease lost")
