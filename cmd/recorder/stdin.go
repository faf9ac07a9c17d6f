package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/p2precorder/internal/app/signaling"
)

// readStdin imports every non-empty line as the peer's exchange text.
func readStdin(ctx context.Context, r io.Reader, coord *signaling.Coordinator) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := coord.Import(ctx, line); err != nil {
			log.Warn().Err(err).Str("module", "stdin").Msg("exchange text rejected")
			continue
		}
		log.Info().Str("module", "stdin").Msg("exchange text applied")
	}
	if err := sc.Err(); err != nil {
		log.Error().Err(err).Str("module", "stdin").Msg("stdin read error")
	}
}

// exchangePrinter writes the local exchange text once it is final. Export
// must not run on the session's dispatch goroutine, so Notify only signals.
type exchangePrinter struct {
	out    io.Writer
	coord  *signaling.Coordinator
	notify chan struct{}
	last   string
}

func newExchangePrinter(out io.Writer, coord *signaling.Coordinator) *exchangePrinter {
	return &exchangePrinter{
		out:    out,
		coord:  coord,
		notify: make(chan struct{}, 1),
	}
}

func (p *exchangePrinter) Notify(s signaling.Snapshot) {
	if s.Exchange.Text == "" || !(s.Exchange.Complete || s.Exchange.TimedOut) {
		return
	}
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *exchangePrinter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.notify:
		}
		snap, err := p.coord.Export(ctx)
		if err != nil || snap.Text == "" || snap.Text == p.last {
			continue
		}
		p.last = snap.Text
		fmt.Fprintln(p.out, snap.Text)
	}
}
