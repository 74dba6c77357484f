package ledger

import (
	"errors"
	"testing"
)

func TestWrapErrorPreservesSentinel(test *testing.T) {
	test.Parallel()
	wrapped := WrapError("store", "entry", "insert", ErrDuplicateAccrual)
	if !errors.Is(wrapped, ErrDuplicateAccrual) {
		test.Fatalf("expected wrapped sentinel to match, got %v", wrapped)
	}

	var operationError OperationError
	if !errors.As(wrapped, &operationError) {
		test.Fatalf("expected OperationError, got %T", wrapped)
	}
	if operationError.Operation() != "store" || operationError.Subject() != "entry" || operationError.Code() != "insert" {
		test.Fatalf("unexpected segments: %s.%s.%s", operationError.Operation(), operationError.Subject(), operationError.Code())
	}
}

func TestWrapErrorNilPassthrough(test *testing.T) {
	test.Parallel()
	if WrapError("store", "entry", "insert", nil) != nil {
		test.Fatal("expected nil for nil error")
	}
}

func TestOperationErrorMessageFormat(test *testing.T) {
	test.Parallel()
	wrapped := WrapError("transfer", "balance", "sum", ErrStorageUnavailable)
	want := "transfer.balance.sum: storage unavailable"
	if wrapped.Error() != want {
		test.Fatalf("expected %q, got %q", want, wrapped.Error())
	}
}
