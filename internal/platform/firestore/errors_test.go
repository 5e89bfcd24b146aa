package firestore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapErrorClassification(t *testing.T) {
	cases := []struct {
		name        string
		code        codes.Code
		notFound    bool
		conflict    bool
		exists      bool
		unavailable bool
	}{
		{name: "not found", code: codes.NotFound, notFound: true},
		{name: "already exists", code: codes.AlreadyExists, conflict: true, exists: true},
		{name: "aborted", code: codes.Aborted, conflict: true},
		{name: "failed precondition", code: codes.FailedPrecondition, conflict: true},
		{name: "unavailable", code: codes.Unavailable, unavailable: true},
		{name: "resource exhausted", code: codes.ResourceExhausted, unavailable: true},
		{name: "permission denied", code: codes.PermissionDenied},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := WrapError("orders.get", status.Error(tc.code, "backend"))
			var fsErr *Error
			if !errors.As(err, &fsErr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if fsErr.IsNotFound() != tc.notFound || fsErr.IsConflict() != tc.conflict || fsErr.IsUnavailable() != tc.unavailable {
				t.Fatalf("unexpected classification for %s: %+v", tc.code, fsErr)
			}
			if fsErr.IsAlreadyExists() != tc.exists || IsAlreadyExists(err) != tc.exists {
				t.Fatalf("unexpected already-exists report for %s", tc.code)
			}
			if fsErr.Code() != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, fsErr.Code())
			}
		})
	}
}

func TestWrapErrorPassesContextErrors(t *testing.T) {
	if err := WrapError("op", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := WrapError("op", status.Error(codes.DeadlineExceeded, "slow")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if WrapError("op", nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestWrapErrorKeepsInnerErrorsReachable(t *testing.T) {
	sentinel := errors.New("domain failure")
	err := WrapError("transaction", sentinel)
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel to be reachable, got %v", err)
	}
	if err.Error() != "transaction: domain failure" {
		t.Fatalf("unexpected message %q", err.Error())
	}

	again := WrapError("outer", err)
	var fsErr *Error
	if !errors.As(again, &fsErr) || fsErr.op != "transaction" {
		t.Fatalf("expected existing op to be kept, got %v", again)
	}
}

func TestIsAlreadyExists(t *testing.T) {
	if !IsAlreadyExists(WrapError("orders.create", status.Error(codes.AlreadyExists, "dup"))) {
		t.Fatalf("expected wrapped already exists to be detected")
	}
	if IsAlreadyExists(WrapError("orders.create", status.Error(codes.Aborted, "contention"))) {
		t.Fatalf("aborted must not be reported as already exists")
	}
	if !IsNotFound(status.Error(codes.NotFound, "missing")) {
		t.Fatalf("expected raw not found to be detected")
	}
}

func TestTransactionFromContextEmpty(t *testing.T) {
	if _, ok := TransactionFromContext(context.Background()); ok {
		t.Fatalf("expected no transaction on background context")
	}
	ctx := ContextWithTransaction(context.Background(), nil)
	if _, ok := TransactionFromContext(ctx); ok {
		t.Fatalf("nil transaction must not be stored")
	}
}

func TestWithoutTransactionMasksCallerTransaction(t *testing.T) {
	tx := &firestore.Transaction{}
	ctx := ContextWithTransaction(context.Background(), tx)
	if got, ok := TransactionFromContext(ctx); !ok || got != tx {
		t.Fatalf("expected transaction on context")
	}
	if _, ok := TransactionFromContext(WithoutTransaction(ctx)); ok {
		t.Fatalf("expected transaction to be masked")
	}
	plain := context.Background()
	if WithoutTransaction(plain) != plain {
		t.Fatalf("expected context without transaction to be returned unchanged")
	}
}

func TestWrapErrorDoesNotUnwrapForeignErrors(t *testing.T) {
	inner := WrapError("orders.get", status.Error(codes.NotFound, "missing"))
	outer := fmt.Errorf("ledger: %w", inner)
	wrapped := WrapError("transaction", outer)
	if !errors.Is(wrapped, outer) {
		t.Fatalf("expected caller error to be preserved, got %v", wrapped)
	}
	if !IsNotFound(wrapped) {
		t.Fatalf("expected not found to stay detectable")
	}
}
