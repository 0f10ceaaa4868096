package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/fleximart-etl/internal/core"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want core.Kind
	}{
		{"connection exception", &pgconn.PgError{Code: "08006"}, core.KindStorageUnavailable},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, core.KindStorageUnavailable},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, core.KindStorageUnavailable},
		{"deadlock", fmt.Errorf("copy: %w", &pgconn.PgError{Code: "40P01"}), core.KindStorageUnavailable},
		{"too many connections", &pgconn.PgError{Code: "53300"}, core.KindStorageUnavailable},
		{"unique violation", &pgconn.PgError{Code: "23505"}, core.KindIntegrityViolation},
		{"foreign key violation", fmt.Errorf("copy: %w", &pgconn.PgError{Code: "23503"}), core.KindIntegrityViolation},
		{"string too long", &pgconn.PgError{Code: "22001"}, core.KindMalformedInput},
		{"numeric out of range", fmt.Errorf("copy: %w", &pgconn.PgError{Code: "22003"}), core.KindMalformedInput},
		{"syntax error", &pgconn.PgError{Code: "42601"}, core.KindNone},
		{"unexpected eof", fmt.Errorf("read: %w", io.ErrUnexpectedEOF), core.KindStorageUnavailable},
		{"connection reset", fmt.Errorf("write: %w", syscall.ECONNRESET), core.KindStorageUnavailable},
		{"dial error", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, core.KindStorageUnavailable},
		{"canceled", fmt.Errorf("copy: %w", context.Canceled), core.KindNone},
		{"deadline", context.DeadlineExceeded, core.KindNone},
		{"plain error", errors.New("boom"), core.KindNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if kind := core.KindOf(got); kind != tt.want {
				t.Errorf("KindOf(classify(%v)) = %v, want %v", tt.err, kind, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("classify(%v) lost the original error", tt.err)
			}
		})
	}
}

func TestClassifyKeepsExistingKind(t *testing.T) {
	err := &core.Error{Kind: core.KindSchemaMismatch, Err: io.EOF}
	if got := classify(err); got != err {
		t.Errorf("classify rewrapped an already classified error: %v", got)
	}
}

func TestClassifyNil(t *testing.T) {
	if err := classify(nil); err != nil {
		t.Errorf("classify(nil) = %v", err)
	}
}

func TestParseUUID(t *testing.T) {
	id, err := parseUUID("6f1c2d1e-8d2b-4c3f-9a53-1f2e3d4c5b6a")
	if err != nil {
		t.Fatalf("parseUUID() error = %v", err)
	}
	if got := uuidString(id); got != "6f1c2d1e-8d2b-4c3f-9a53-1f2e3d4c5b6a" {
		t.Errorf("uuidString() = %q", got)
	}

	if _, err := parseUUID("not-a-uuid"); err == nil {
		t.Error("parseUUID(not-a-uuid) expected error")
	}
}
