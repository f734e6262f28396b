//go:build !linux

package keyholderlog

import "log/slog"

// newSyslogHandler is a no-op off Linux; the proxy still gets its
// stderr handler, it just cannot also target the auth facility.
func newSyslogHandler(level slog.Level) (slog.Handler, error) {
	return nil, nil
}
