package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zulandar/benchyard/internal/config"
)

const followPoll = 50 * time.Millisecond

// startTmux runs the serial client inside a tmux session so operators
// can attach to it, mirrors the pane into a log file and follows that
// file into buf. An existing session is reused and left running on
// close.
func startTmux(ctx context.Context, tm Tmux, cfg config.ConsoleConfig, buf *Buffer) (func() error, error) {
	session := cfg.Session
	logFile := cfg.LogFile
	if logFile == "" {
		logFile = filepath.Join(os.TempDir(), "benchyard-"+session+".log")
	}

	created := false
	if !tm.SessionExists(session) {
		if len(cfg.Command) == 0 {
			return nil, fmt.Errorf("console: tmux: command is required")
		}
		if err := tm.CreateSession(session, cfg.Command); err != nil {
			return nil, fmt.Errorf("console: tmux: %w", err)
		}
		created = true
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_RDONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("console: tmux: log file: %w", err)
	}
	// Follow from the current end so old output is not replayed.
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, fmt.Errorf("console: tmux: log file: %w", err)
	}
	if err := tm.PipePane(session, "cat >> "+shellQuote(logFile)); err != nil {
		f.Close()
		return nil, fmt.Errorf("console: tmux: %w", err)
	}
	buf.SetOutput(&tmuxWriter{tm: tm, target: session})

	fctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		follow(fctx, f, buf, followPoll)
	}()

	return func() error {
		cancel()
		<-done
		f.Close()
		if created {
			return tm.KillSession(session)
		}
		return nil
	}, nil
}

// follow copies r into w, waiting for more data at EOF, until ctx is done.
func follow(ctx context.Context, r io.Reader, w io.Writer, poll time.Duration) {
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			w.Write(chunk[:n])
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return
		}
		if n == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(poll):
			}
		}
	}
}

// tmuxWriter types text into a pane. Control-C and newline are sent as
// key names; everything else literally.
type tmuxWriter struct {
	tm     Tmux
	target string
}

func (w *tmuxWriter) Write(p []byte) (int, error) {
	var lit strings.Builder
	flush := func() error {
		if lit.Len() == 0 {
			return nil
		}
		err := w.tm.SendLiteral(w.target, lit.String())
		lit.Reset()
		return err
	}
	for _, r := range string(p) {
		var key string
		switch r {
		case '\x03':
			key = "C-c"
		case '\n':
			key = "Enter"
		case '\r':
			continue
		default:
			lit.WriteRune(r)
			continue
		}
		if err := flush(); err != nil {
			return 0, err
		}
		if err := w.tm.SendKeys(w.target, key); err != nil {
			return 0, err
		}
	}
	if err := flush(); err != nil {
		return 0, err
	}
	return len(p), nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
