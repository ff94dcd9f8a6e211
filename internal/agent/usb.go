package agent

import (
	"context"

	"github.com/zulandar/benchyard/internal/power"
	"github.com/zulandar/benchyard/internal/usb"
)

// USB ports are numbered from 1 at this level, as operators see them.

// USBPorts returns the number of switchable ports.
func (a *Agent) USBPorts() int {
	if a.USB == nil {
		return 0
	}
	return a.USB.Len()
}

// USBHasClass reports whether a port carries a device of class.
func (a *Agent) USBHasClass(class string) bool {
	return a.USB != nil && a.USB.HasClass(class)
}

// USBOnByClass powers the port carrying class.
func (a *Agent) USBOnByClass(ctx context.Context, session, class string) bool {
	return a.USB != nil && a.USB.OnByClass(ctx, class)
}

// USBOffByClass unpowers the port carrying class.
func (a *Agent) USBOffByClass(ctx context.Context, session, class string) bool {
	return a.USB != nil && a.USB.OffByClass(ctx, class)
}

// USBOn powers port n.
func (a *Agent) USBOn(ctx context.Context, session string, n int) (bool, error) {
	if a.USB == nil {
		return false, usb.ErrNoPort
	}
	return a.USB.On(ctx, n-1)
}

// USBOff unpowers port n.
func (a *Agent) USBOff(ctx context.Context, session string, n int) (bool, error) {
	if a.USB == nil {
		return false, usb.ErrNoPort
	}
	return a.USB.Off(ctx, n-1)
}

// USBStatus reads the power state of port n.
func (a *Agent) USBStatus(ctx context.Context, session string, n int) (power.State, error) {
	if a.USB == nil {
		return power.Unsure, usb.ErrNoPort
	}
	return a.USB.Status(ctx, n-1)
}
