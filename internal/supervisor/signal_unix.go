//go:build !windows

package supervisor

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

var forwardedSignals = []os.Signal{os.Interrupt, unix.SIGTERM, unix.SIGHUP, unix.SIGQUIT}

func forward(p *os.Process, sig os.Signal) error {
	return p.Signal(sig)
}

// interrupt asks the child to shut down the way an operator's Ctrl+C would.
func interrupt(p *os.Process) error {
	return p.Signal(unix.SIGINT)
}

// exitCode follows the shell convention: a child killed by signal N
// reports 128+N.
func exitCode(state *os.ProcessState) int {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}
