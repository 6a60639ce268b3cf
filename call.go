package treelog

import (
	"context"
	"fmt"
)

// Call is the idiomatic Go stand-in for the source system's @branch
// decorator. Go has no decorators, but a generic higher-order function
// gives callers the same behavior: fork a new branch named name, log args
// as a SYSTEM entry, run fn, log its return value as a SYSTEM entry, and
// log+re-raise (re-panic) any failure as an ERROR entry.
//
// Call works identically whether fn is synchronous or launches further
// goroutines of its own, since the frontier it hands fn is an ordinary
// context.Context value.
func Call[T any](ctx context.Context, name string, args map[string]any, fn func(ctx context.Context) (T, error)) (result T, err error) {
	forkCtx, err := Fork(ctx, name)
	if err != nil {
		return result, err
	}

	if args != nil {
		_ = Log(forkCtx, "call", WithMessageType(MessageTypeSystem), WithEntryMetadata(args))
	}

	defer func() {
		if r := recover(); r != nil {
			_ = Log(forkCtx, fmt.Sprintf("panic: %v", r), WithMessageType(MessageTypeError))
			panic(r)
		}
	}()

	result, err = fn(forkCtx)
	if err != nil {
		_ = Log(forkCtx, err.Error(), WithMessageType(MessageTypeError))
		return result, err
	}

	_ = Log(forkCtx, fmt.Sprintf("return: %v", result), WithMessageType(MessageTypeSystem))
	return result, nil
}
