// Package logging configures the process logger and the interaction log.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init points the global logger at a console writer on stderr. verbose
// lowers the level to debug.
func Init(verbose bool) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(levelFor(verbose))
	log.Logger = zerolog.New(NewConsoleWriter(os.Stderr)).With().Timestamp().Logger()
}

func levelFor(verbose bool) zerolog.Level {
	if verbose {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// NewConsoleWriter renders JSON log lines for humans. Colors are used only
// on the process stderr.
func NewConsoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05", NoColor: out != os.Stderr}
}

// WithComponent returns the global logger tagged with component.
func WithComponent(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// jsonLogger fans one event stream out to every writer.
func jsonLogger(w io.Writer, more ...io.Writer) zerolog.Logger {
	if len(more) > 0 {
		w = zerolog.MultiLevelWriter(append([]io.Writer{w}, more...)...)
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// Interactions records every exchange between pipeline components as JSON
// lines, one object per exchange with component, kind and content fields.
type Interactions struct {
	log    zerolog.Logger
	closer io.Closer
}

// OpenInteractions truncates path and starts a new interaction log. Extra
// writers receive the same JSON lines.
func OpenInteractions(path string, extra ...io.Writer) (*Interactions, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	l := jsonLogger(f, extra...)
	l.Info().Str("component", "PIPELINE").Str("kind", "LOG_START").Msg("interaction log started")
	return &Interactions{log: l, closer: f}, nil
}

// NewInteractions records to w without owning it.
func NewInteractions(w io.Writer) *Interactions {
	return &Interactions{log: jsonLogger(w)}
}

func (i *Interactions) Record(component, kind, content string) {
	if i == nil {
		return
	}
	i.log.Info().Str("component", component).Str("kind", kind).Str("content", content).Send()
}

func (i *Interactions) Close() error {
	if i == nil || i.closer == nil {
		return nil
	}
	return i.closer.Close()
}
