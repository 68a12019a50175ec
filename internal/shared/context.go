package shared

import "context"

type operatorContextKey struct{}

// Operator identifies the already-authenticated analyst performing the
// request. Authentication happens upstream; the core only records who touched
// each row in the audit stamps.
type Operator struct {
	Login string
	Nome  string
}

// ContextWithOperator stores the operator in the context.
func ContextWithOperator(ctx context.Context, op Operator) context.Context {
	return context.WithValue(ctx, operatorContextKey{}, op)
}

// OperatorFromContext extracts the operator; a zero Operator means the
// upstream gateway did not forward identity headers.
func OperatorFromContext(ctx context.Context) Operator {
	op, _ := ctx.Value(operatorContextKey{}).(Operator)
	return op
}
