package cluster

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"pkt.systems/pslog"

	"github.com/lowline/skirmish/internal/ipc"
)

// Process is a handle on one running worker, abstracted so manager tests can
// substitute a fake for a real child process.
type Process interface {
	PID() int
	Send(msg ipc.Message) error
	Kill() error
}

// Spawner forks worker processes. onMessage is called for every valid IPC
// frame the worker writes; onExit fires exactly once when the process ends,
// with the wait error if it crashed.
type Spawner interface {
	Spawn(id, slot, port int, onMessage func(ipc.Message), onExit func(err error)) (Process, error)
}

// ExecSpawner runs workers as real child processes speaking
// newline-delimited JSON over their stdin/stdout. Worker stderr is passed
// through so worker logs land in the master's stderr stream.
type ExecSpawner struct {
	// Binary is the worker executable path.
	Binary string
	Logger pslog.Logger
}

type execProcess struct {
	cmd  *exec.Cmd
	conn *ipc.Conn
}

func (p *execProcess) PID() int                   { return p.cmd.Process.Pid }
func (p *execProcess) Send(msg ipc.Message) error { return p.conn.Send(msg) }
func (p *execProcess) Kill() error                { return p.cmd.Process.Kill() }

func (s *ExecSpawner) Spawn(id, slot, port int, onMessage func(ipc.Message), onExit func(err error)) (Process, error) {
	cmd := exec.Command(s.Binary)
	cmd.Env = append(os.Environ(),
		"SKIRMISH_WORKER_ID="+strconv.Itoa(id),
		"SKIRMISH_WORKER_SLOT="+strconv.Itoa(slot),
		"SKIRMISH_WORKER_PORT="+strconv.Itoa(port),
	)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker %d stdin: %w", id, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker %d stdout: %w", id, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker %d: %w", id, err)
	}

	conn := ipc.NewConn(stdout, stdin, s.Logger.With("worker", id))
	proc := &execProcess{cmd: cmd, conn: conn}

	// The read loop drains worker frames until its stdout closes; Wait then
	// reaps the process and reports the exit to the manager.
	go func() {
		if err := conn.ReadLoop(onMessage); err != nil {
			s.Logger.Warn("worker ipc read ended", "worker", id, "error", err)
		}
		onExit(cmd.Wait())
	}()

	return proc, nil
}
