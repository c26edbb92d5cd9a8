package memory

import "errors"

// ErrQuotaExceeded is wrapped into a core.KindQuotaExceeded error when a
// store/promote operation would push a user over their tier's storage quota.
var ErrQuotaExceeded = errors.New("memory storage quota exceeded")
