package firestore

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapErrorCategorisesStatusCodes(t *testing.T) {
	for _, tc := range []struct {
		name          string
		code          codes.Code
		notFound      bool
		conflict      bool
		alreadyExists bool
		unavailable   bool
	}{
		{name: "not found", code: codes.NotFound, notFound: true},
		{name: "already exists", code: codes.AlreadyExists, conflict: true, alreadyExists: true},
		{name: "failed precondition", code: codes.FailedPrecondition, conflict: true},
		{name: "aborted", code: codes.Aborted, conflict: true},
		{name: "unavailable", code: codes.Unavailable, unavailable: true},
		{name: "resource exhausted", code: codes.ResourceExhausted, unavailable: true},
		{name: "internal", code: codes.Internal, unavailable: true},
		{name: "deadline exceeded", code: codes.DeadlineExceeded, unavailable: true},
		{name: "permission denied", code: codes.PermissionDenied},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := WrapError("orders.get", status.Error(tc.code, "boom"))

			var repoErr *Error
			if !errors.As(err, &repoErr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if repoErr.IsNotFound() != tc.notFound {
				t.Errorf("IsNotFound = %v, want %v", repoErr.IsNotFound(), tc.notFound)
			}
			if repoErr.IsConflict() != tc.conflict {
				t.Errorf("IsConflict = %v, want %v", repoErr.IsConflict(), tc.conflict)
			}
			if repoErr.IsAlreadyExists() != tc.alreadyExists {
				t.Errorf("IsAlreadyExists = %v, want %v", repoErr.IsAlreadyExists(), tc.alreadyExists)
			}
			if repoErr.IsUnavailable() != tc.unavailable {
				t.Errorf("IsUnavailable = %v, want %v", repoErr.IsUnavailable(), tc.unavailable)
			}
		})
	}
}

func TestWrapErrorPassesThroughContextErrors(t *testing.T) {
	if err := WrapError("op", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := WrapError("op", context.DeadlineExceeded); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if err := WrapError("op", status.Error(codes.Canceled, "rpc cancelled")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected grpc cancelled mapped to context.Canceled, got %v", err)
	}
}

func TestWrapErrorKeepsExistingAnnotation(t *testing.T) {
	inner := WrapError("", status.Error(codes.NotFound, "missing"))
	outer := WrapError("orders.get", inner)

	var repoErr *Error
	if !errors.As(outer, &repoErr) {
		t.Fatalf("expected *Error, got %T", outer)
	}
	if !repoErr.IsNotFound() {
		t.Fatalf("category lost on rewrap")
	}
	if repoErr.Error() != "orders.get: rpc error: code = NotFound desc = missing" {
		t.Fatalf("unexpected message: %s", repoErr.Error())
	}
	if WrapError("other.op", outer) != outer {
		t.Fatalf("rewrapping must not allocate a new error")
	}
}

func TestWrapErrorNil(t *testing.T) {
	if err := WrapError("op", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
