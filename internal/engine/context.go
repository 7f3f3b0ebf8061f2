package engine

import "context"

type contextKey int

const (
	appKey contextKey = iota
	nodeKey
)

func withApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appKey, app)
}

func withNode(ctx context.Context, node *Task) context.Context {
	return context.WithValue(ctx, nodeKey, node)
}

// AppFromContext returns the App running the current process, if any.
func AppFromContext(ctx context.Context) (*App, bool) {
	app, ok := ctx.Value(appKey).(*App)
	return app, ok
}

// NodeFromContext returns the task being invoked, if any. Inside a batch
// member this is the member itself, so String gives "name(i)".
func NodeFromContext(ctx context.Context) (*Task, bool) {
	node, ok := ctx.Value(nodeKey).(*Task)
	return node, ok
}
