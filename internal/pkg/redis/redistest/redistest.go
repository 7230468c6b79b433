// Package redistest starts miniredis-backed clients for package tests.
package redistest

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	pkgredis "github.com/papergrade/core/internal/pkg/redis"
)

// New returns a client connected to a fresh miniredis server and the server itself.
func New(t testing.TB) (*pkgredis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return pkgredis.Wrap(rdb), mr
}
