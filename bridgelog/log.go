package bridgelog

import (
	"io"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Setup routes the root logger to stderr with the terminal format, colored
// when stderr is a terminal, filtered at the given verbosity (0=crit .. 5=trace).
func Setup(verbosity int) {
	usecolor := (isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())) && os.Getenv("TERM") != "dumb"
	output := io.Writer(os.Stderr)
	if usecolor {
		output = colorable.NewColorableStderr()
	}
	SetupWriter(output, verbosity, usecolor)
}

// SetupWriter is Setup with an explicit sink.
func SetupWriter(w io.Writer, verbosity int, usecolor bool) {
	handler := log.StreamHandler(w, log.TerminalFormat(usecolor))
	log.Root().SetHandler(log.LvlFilterHandler(log.Lvl(verbosity), handler))
}

// New returns a child of the root logger carrying ctx on every line.
func New(ctx ...interface{}) log.Logger {
	return log.New(ctx...)
}

func Debug(msg string, ctx ...interface{}) {
	log.Debug("[crossborrow] "+msg, ctx...)
}

func Info(msg string, ctx ...interface{}) {
	log.Info("[crossborrow] "+msg, ctx...)
}

func Warn(msg string, ctx ...interface{}) {
	log.Warn("[crossborrow] "+msg, ctx...)
}

func Error(msg string, ctx ...interface{}) {
	log.Error("[crossborrow] "+msg, ctx...)
}
