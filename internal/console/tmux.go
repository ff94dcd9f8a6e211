package console

// Tmux abstracts the tmux operations the tmux console needs.
type Tmux interface {
	SessionExists(name string) bool
	CreateSession(name string, command []string) error
	PipePane(target, shellCommand string) error
	SendLiteral(target, text string) error
	SendKeys(target string, keys ...string) error
	KillSession(name string) error
}

// DefaultTmux is the tmux implementation used by Open. RealTmux comes
// from tmux_real.go, or from the no-op stub under the unittest build tag.
var DefaultTmux Tmux = RealTmux{}
