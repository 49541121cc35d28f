package cli

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fahmaliyi/volcred/entropy"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

const defaultMinKeystrokes = 32

// TerminalEnricher asks the operator to type random keys before a rekey and
// stirs every keystroke, with its arrival time, into Pool. When In is not a
// terminal the pool is used as it is.
type TerminalEnricher struct {
	Pool          *entropy.Pool
	In            *os.File
	Out           io.Writer
	MinKeystrokes int
}

func (e *TerminalEnricher) ResetUserEnrichment() { e.Pool.ResetUserEnrichment() }

func (e *TerminalEnricher) Enrich(ctx context.Context, hash string) error {
	if err := e.Pool.Enrich(ctx, hash); err != nil {
		return err
	}
	if e.In == nil || !term.IsTerminal(int(e.In.Fd())) {
		log.Debug().Str("hash", e.Pool.HashName()).Msg("Not a terminal, skipping keystroke collection")
		return nil
	}

	need := e.MinKeystrokes
	if need <= 0 {
		need = defaultMinKeystrokes
	}

	fd := int(e.In.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return err
	}
	defer term.Restore(fd, state)

	fmt.Fprintf(e.Out, "Type at least %d random keys to stir the random pool (%s), then press Enter (Ctrl+C skips).\r\n", need, e.Pool.HashName())

	var (
		buf   [1]byte
		stamp [8]byte
		got   int
	)
	for {
		if err := ctx.Err(); err != nil {
			fmt.Fprint(e.Out, "\r\n")
			return err
		}
		if _, err := e.In.Read(buf[:]); err != nil {
			fmt.Fprint(e.Out, "\r\n")
			return err
		}
		switch buf[0] {
		case 3: // Ctrl+C skips, leaving the pool unenriched
			fmt.Fprint(e.Out, "\r\n")
			log.Info().Int("keystrokes", got).Msg("Keystroke collection skipped")
			return nil
		case 13, 10:
			if got >= need {
				fmt.Fprint(e.Out, "\r\n")
				e.Pool.SetEnrichedByUser(true)
				log.Debug().Int("keystrokes", got).Msg("Random pool enriched")
				return nil
			}
			continue
		}

		binary.LittleEndian.PutUint64(stamp[:], uint64(time.Now().UnixNano()))
		e.Pool.Mix(append(stamp[:], buf[0]))
		got++
		fmt.Fprintf(e.Out, "\r%d/%d", min(got, need), need)
	}
}
