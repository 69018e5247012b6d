// Package xid mints the short opaque identifiers that tag every HTTP
// request's log lines, so a single request can be followed through the
// middleware chain and into handler output.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns an id of the form "<prefix>-<unixnano>-<hex>". The
// timestamp keeps ids sortable in the log; the random suffix keeps
// concurrent requests distinct. If the random source fails the id
// degrades to timestamp-only rather than failing the request.
func New(prefix string) string {
	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(suffix))
}
