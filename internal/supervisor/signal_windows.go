//go:build windows

package supervisor

import (
	"os"
	"syscall"
)

var forwardedSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// forward relays sig to the child. The console already delivers Ctrl+C to
// every attached process; anything else can only be expressed as a kill.
func forward(p *os.Process, sig os.Signal) error {
	if sig == os.Interrupt {
		return nil
	}
	return p.Kill()
}

// interrupt stops the child. Windows cannot deliver Ctrl+C to a single
// process, so the child is killed.
func interrupt(p *os.Process) error {
	return p.Kill()
}

func exitCode(state *os.ProcessState) int {
	return state.ExitCode()
}
