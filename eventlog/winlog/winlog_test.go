//go:build !windows

package winlog

import (
	"context"
	"errors"
	"testing"

	"github.com/iidesho/evtship/eventlog"
)

func TestUnsupportedElsewhere(t *testing.T) {
	_, err := eventlog.Open(context.Background(), eventlog.KindWindows, "System")
	if !errors.Is(err, eventlog.ErrUnsupported) {
		t.Error("expected unsupported, got", err)
	}
}
