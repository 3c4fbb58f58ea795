package workflow

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/peeteer1245/placetel-recording-downloader/internal/config"
)

// PromptConfirmer asks on out and waits for one line on in. Only the
// answers config.ParseBool treats as true confirm; end of input declines.
type PromptConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

func NewPromptConfirmer(in io.Reader, out io.Writer) *PromptConfirmer {
	return &PromptConfirmer{in: bufio.NewReader(in), out: out}
}

func (p *PromptConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	if _, err := fmt.Fprintf(p.out, "%s [y/N]: ", prompt); err != nil {
		return false, err
	}

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		ch <- answer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a := <-ch:
		if a.err != nil && !errors.Is(a.err, io.EOF) {
			return false, a.err
		}
		return config.ParseBool(a.line), nil
	}
}
