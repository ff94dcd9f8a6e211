//go:build unittest

package console

// RealTmux is a no-op stub used during unit testing (build tag: unittest).
// The real implementation is in tmux_real.go.
type RealTmux struct{}

func (RealTmux) SessionExists(name string) bool                    { return false }
func (RealTmux) CreateSession(name string, command []string) error { return nil }
func (RealTmux) PipePane(target, shellCommand string) error        { return nil }
func (RealTmux) SendLiteral(target, text string) error             { return nil }
func (RealTmux) SendKeys(target string, keys ...string) error      { return nil }
func (RealTmux) KillSession(name string) error                     { return nil }
