//go:build linux

package keyholderlog

import (
	"log/slog"
	"log/syslog"
)

// newSyslogHandler dials the local syslog daemon and targets the auth
// facility, matching the reference implementation's diagnostic sink.
func newSyslogHandler(level slog.Level) (slog.Handler, error) {
	writer, err := syslog.New(syslog.LOG_AUTH|syslog.LOG_NOTICE, "keyholder-proxy")
	if err != nil {
		return nil, err
	}
	return slog.NewTextHandler(writer, &slog.HandlerOptions{Level: level}), nil
}
