package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"
)

// vty reads an interactive CLI stream until the device asks for input.
// A single pump goroutine copies the reader into a channel so every wait can
// be bounded by the command timeout and the caller's context.
type vty struct {
	w       io.Writer
	chunks  chan []byte
	errc    chan error
	done    chan struct{}
	once    sync.Once
	timeout time.Duration
}

func newVTY(r io.Reader, w io.Writer, timeout time.Duration) *vty {
	v := &vty{
		w:       w,
		chunks:  make(chan []byte, 16),
		errc:    make(chan error, 1),
		done:    make(chan struct{}),
		timeout: timeout,
	}
	go v.pump(r)
	return v
}

func (v *vty) pump(r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case v.chunks <- chunk:
			case <-v.done:
				return
			}
		}
		if err != nil {
			v.errc <- err
			return
		}
	}
}

func (v *vty) close() {
	v.once.Do(func() { close(v.done) })
}

// writeLine sends one line of input.
func (v *vty) writeLine(line string) error {
	if _, err := io.WriteString(v.w, line+"\n"); err != nil {
		return fmt.Errorf("writing to device: %w", err)
	}
	return nil
}

// readUntil accumulates output until match accepts it. match receives the
// normalized output read so far. The timeout restarts whenever output arrives.
func (v *vty) readUntil(ctx context.Context, match func(out string) bool) (string, error) {
	var buf strings.Builder
	timer := time.NewTimer(v.timeout)
	defer timer.Stop()

	for {
		select {
		case chunk := <-v.chunks:
			buf.Write(chunk)
			if match(normalize(buf.String())) {
				return buf.String(), nil
			}
			timer.Reset(v.timeout)

		case err := <-v.errc:
			// The pump may have queued output ahead of the error.
			for drained := false; !drained; {
				select {
				case chunk := <-v.chunks:
					buf.Write(chunk)
				default:
					drained = true
				}
			}
			v.errc <- err
			if match(normalize(buf.String())) {
				return buf.String(), nil
			}
			if errors.Is(err, io.EOF) {
				return buf.String(), errors.New("connection closed by device")
			}
			return buf.String(), fmt.Errorf("reading from device: %w", err)

		case <-timer.C:
			return buf.String(), fmt.Errorf("%w after %s", ErrCommandTimeout, v.timeout)

		case <-ctx.Done():
			return buf.String(), ctx.Err()
		}
	}
}

// drain discards output until the stream has been quiet for the given
// duration. Used after login, where banners and an unsolicited prompt may
// still be in flight.
func (v *vty) drain(ctx context.Context, quiet time.Duration) string {
	var buf strings.Builder
	timer := time.NewTimer(quiet)
	defer timer.Stop()

	for {
		select {
		case chunk := <-v.chunks:
			buf.Write(chunk)
			timer.Reset(quiet)
		case err := <-v.errc:
			v.errc <- err
			return buf.String()
		case <-timer.C:
			return buf.String()
		case <-ctx.Done():
			return buf.String()
		}
	}
}

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)

// normalize strips terminal escape sequences and carriage returns.
func normalize(s string) string {
	s = ansiEscape.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "")
}

func lastLine(s string) string {
	s = normalize(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return s
}

// splitResponse separates raw output of one command into the body and the
// trailing prompt, dropping the echoed command line.
func splitResponse(raw, cmd string) (body, prompt string) {
	text := normalize(raw)

	if i := strings.LastIndexByte(text, '\n'); i >= 0 {
		prompt = text[i+1:]
		text = text[:i]
	} else {
		prompt = text
		text = ""
	}

	// Drop everything up to and including the echoed command line.
	if echo := strings.TrimSpace(cmd); echo != "" {
		if i := strings.Index(text, echo); i >= 0 {
			text = text[i+len(echo):]
			if j := strings.IndexByte(text, '\n'); j >= 0 {
				text = text[j+1:]
			} else {
				text = ""
			}
		}
	}

	return strings.Trim(text, "\n"), strings.TrimSpace(prompt)
}
