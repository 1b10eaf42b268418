package store

import (
	"github.com/corestateio/corestate/config"
	"github.com/corestateio/corestate/storeerr"
)

// globalOnError forwards to the process-wide config's error hook, which per
// spec §7 always runs after a store's own OnError, with the same arguments.
func globalOnError(err error, operation string, meta storeerr.Meta) {
	config.Global().OnError(err, operation, meta)
}
