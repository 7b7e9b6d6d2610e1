//go:build !windows

package winlog

import (
	"context"
	"fmt"

	"github.com/iidesho/evtship/eventlog"
)

func init() {
	eventlog.Register(eventlog.KindWindows, func(_ context.Context, name string) (eventlog.Source, error) {
		return Open(name)
	})
}

func Open(name string) (eventlog.Source, error) {
	return nil, fmt.Errorf("%w: windows event log %q", eventlog.ErrUnsupported, name)
}
