package agent

import (
	"context"
	"fmt"

	"github.com/zulandar/benchyard/internal/media"
	"github.com/zulandar/benchyard/internal/power"
)

// StorageLocked reports whether the shared storage must stay where it
// is: another session holds the board, an image is being written, or
// the mux cannot hot-plug and the target is not confirmed off.
func (a *Agent) StorageLocked(ctx context.Context, session string) bool {
	if a.PowerLocked(ctx, session) {
		return true
	}
	if a.Mux == nil {
		return true
	}
	if a.isWriting() {
		return true
	}
	if a.Hotplug {
		return false
	}
	if a.Power == nil {
		return true
	}
	return a.Power.Status(ctx) != power.Off
}

// StorageToHost attaches the storage to the host.
func (a *Agent) StorageToHost(ctx context.Context, session string) bool {
	if a.StorageLocked(ctx, session) {
		a.Log.Debug().Str("session", session).Msg("storage to host refused: locked")
		return false
	}
	return a.Mux.ToHost(ctx)
}

// StorageToTarget attaches the storage to the target.
func (a *Agent) StorageToTarget(ctx context.Context, session string) bool {
	if a.StorageLocked(ctx, session) {
		a.Log.Debug().Str("session", session).Msg("storage to target refused: locked")
		return false
	}
	return a.Mux.ToTarget(ctx)
}

// StorageSwap moves the storage to the other side and returns where it
// ended up.
func (a *Agent) StorageSwap(ctx context.Context, session string) media.Location {
	if !a.StorageLocked(ctx, session) {
		switch a.Mux.Status(ctx) {
		case media.Host:
			a.Mux.ToTarget(ctx)
		case media.Target:
			a.Mux.ToHost(ctx)
		}
	}
	return a.StorageStatus(ctx, session).Location
}

// StorageStatus reports the storage location and write progress.
func (a *Agent) StorageStatus(ctx context.Context, session string) StorageStatus {
	if a.Mux == nil {
		return StorageStatus{Location: media.Unknown}
	}
	a.mu.Lock()
	writing, written := a.writing, a.written
	a.mu.Unlock()
	return StorageStatus{Location: a.Mux.Status(ctx), Writing: writing, Written: written}
}

// StorageWriteImage writes the image at path to the storage, which must
// be attached to the host.
func (a *Agent) StorageWriteImage(ctx context.Context, session, path string) error {
	if a.Mux == nil {
		return ErrNoStorage
	}
	if a.PowerLocked(ctx, session) {
		return ErrLocked
	}
	a.mu.Lock()
	if a.writing {
		a.mu.Unlock()
		return fmt.Errorf("%w: write already in progress", ErrStorageLocked)
	}
	a.writing, a.written = true, 0
	a.mu.Unlock()

	a.Log.Info().Str("image", path).Str("compression", media.DetectCompression(path).String()).Msg("writing image")
	n, err := media.WriteImage(ctx, a.Mux, path)

	a.mu.Lock()
	a.writing, a.written = false, n
	a.mu.Unlock()
	if err != nil {
		return fmt.Errorf("agent: write image: %w", err)
	}
	a.Log.Info().Int64("bytes", n).Msg("image written")
	return nil
}

func (a *Agent) isWriting() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.writing
}
