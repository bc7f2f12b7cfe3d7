//go:build !linux

package renderworker

import "errors"

var errRSSUnsupported = errors.New("resident set sampling unsupported")

func residentBytes(int) (int64, error) {
	return 0, errRSSUnsupported
}
