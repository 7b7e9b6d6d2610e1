package contextkeys

import "context"

type ContextKey string

func (c ContextKey) String() string {
	return string(c)
}

const (
	// Origin is the host a record arrived from.
	Origin       ContextKey = "origin"
	ConnectionID ContextKey = "connection_id"
)

var Keys []ContextKey = []ContextKey{
	Origin,
	ConnectionID,
}

func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, Origin, origin)
}

// OriginFrom returns the origin stored in ctx, or "unknown".
func OriginFrom(ctx context.Context) string {
	if o, ok := ctx.Value(Origin).(string); ok && o != "" {
		return o
	}
	return "unknown"
}

func WithConnectionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ConnectionID, id)
}

func ConnectionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ConnectionID).(string)
	return id
}

// Attrs lists the known keys present in ctx as log attributes.
func Attrs(ctx context.Context) []any {
	var attrs []any
	for _, k := range Keys {
		if v := ctx.Value(k); v != nil {
			attrs = append(attrs, k.String(), v)
		}
	}
	return attrs
}
