package session

import "context"

type storeKeyCtx struct{}

func WithStore(ctx context.Context, st *Store) context.Context {
	return context.WithValue(ctx, storeKeyCtx{}, st)
}

func FromContext(ctx context.Context) (*Store, bool) {
	st, ok := ctx.Value(storeKeyCtx{}).(*Store)
	return st, ok && st != nil
}
