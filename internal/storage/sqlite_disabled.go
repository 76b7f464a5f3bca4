//go:build !sqlite
// +build !sqlite

package storage

import (
	"errors"

	"taskherd/pkg/logx"
)

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	return nil, errors.New("sqlite driver not built in (rebuild with -tags sqlite)")
}
