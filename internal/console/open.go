package console

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/zulandar/benchyard/internal/config"
)

// Console is a running backend feeding a Buffer.
type Console struct {
	*Buffer
	closeFn func() error
}

// Close stops the backend. The buffered output stays readable.
func (c *Console) Close() error {
	if c.closeFn == nil {
		return nil
	}
	err := c.closeFn()
	c.closeFn = nil
	c.SetOutput(nil)
	return err
}

// Open starts the console backend selected by cfg.Variant with the
// configured prompt installed.
func Open(ctx context.Context, cfg config.ConsoleConfig, log zerolog.Logger) (*Console, error) {
	buf := NewBuffer(nil, log.With().Str("console", cfg.Variant).Logger())
	buf.Prompt(cfg.Prompt)

	var (
		closeFn func() error
		err     error
	)
	switch cfg.Variant {
	case "process":
		closeFn, err = startProcess(cfg.Command, buf)
	case "tmux":
		closeFn, err = startTmux(ctx, DefaultTmux, cfg, buf)
	default:
		return nil, fmt.Errorf("console: unsupported variant %q", cfg.Variant)
	}
	if err != nil {
		return nil, err
	}
	return &Console{Buffer: buf, closeFn: closeFn}, nil
}
