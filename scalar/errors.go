package scalar

import (
	"errors"
	"fmt"
)

var (
	ErrDetachedNode  = errors.New("node is not attached to a tape")
	ErrTapeMismatch  = errors.New("operands belong to different tapes")
	ErrNoNode        = errors.New("at least one operand must be a node")
	ErrUnsupportedOp = errors.New("unsupported operator")
)

// GraphError wraps construction and traversal failures.
type GraphError struct {
	Kind error
	Msg  string
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *GraphError) Unwrap() error { return e.Kind }

func graphErrorf(kind error, format string, args ...any) error {
	return &GraphError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func unsupportedOp(id NodeID, op Op) error {
	return graphErrorf(ErrUnsupportedOp, "node %d has operator %s", id, op)
}
