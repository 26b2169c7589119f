package database

import "context"

type txKey struct{}

// TxInfo is the transaction carried in a context. Owned is false when a nested
// unit of work joined a transaction started further up the call chain.
type TxInfo struct {
	Tx    Transaction
	Owned bool
}

// WithTx stores tx in ctx.
func WithTx(ctx context.Context, tx Transaction, owned bool) context.Context {
	return context.WithValue(ctx, txKey{}, TxInfo{Tx: tx, Owned: owned})
}

// TxInfoFromContext returns the transaction stored in ctx, if any.
func TxInfoFromContext(ctx context.Context) (TxInfo, bool) {
	info, ok := ctx.Value(txKey{}).(TxInfo)
	if !ok || info.Tx == nil {
		return TxInfo{}, false
	}
	return info, true
}

// InTransaction reports whether ctx carries a transaction.
func InTransaction(ctx context.Context) bool {
	_, ok := TxInfoFromContext(ctx)
	return ok
}

// ExecutorFromContext returns the transaction in ctx, or conn when there is none.
func ExecutorFromContext(ctx context.Context, conn Connection) Executor {
	if info, ok := TxInfoFromContext(ctx); ok {
		return info.Tx
	}
	return conn
}
