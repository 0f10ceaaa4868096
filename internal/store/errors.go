package store

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/fleximart-etl/internal/core"
)

// SQLSTATE codes that signal the server or connection, not the data.
var transientCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"53300": true, // too_many_connections
	"57P01": true, // admin_shutdown
	"57P02": true, // crash_shutdown
	"57P03": true, // cannot_connect_now
}

// classify wraps err in a *core.Error whose Kind tells the retry loop
// whether another attempt can succeed.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if core.KindOf(err) != core.KindNone {
		return err
	}

	switch {
	case isTransient(err):
		return &core.Error{Kind: core.KindStorageUnavailable, Err: err}
	case isIntegrity(err):
		return &core.Error{Kind: core.KindIntegrityViolation, Err: err}
	case isDataException(err):
		return &core.Error{Kind: core.KindMalformedInput, Err: err}
	}
	return err
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08") || transientCodes[pgErr.Code]
	}

	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}

// isIntegrity reports constraint violations (SQLSTATE class 23).
func isIntegrity(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23")
}

// isDataException reports values the server refused (SQLSTATE class 22),
// such as a string too long for its column.
func isDataException(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "22")
}
