package rexec

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/natefinch/lumberjack.v2"
)

// A ManagedProcess wraps one external process. One-shot processes run to
// completion in Start; managed (long-running) processes are started and then
// stopped via Stop.
type ManagedProcess struct {
	config ProcessConfig
	logger golog.Logger

	mu         sync.Mutex
	cmd        *exec.Cmd
	fileLogger *lumberjack.Logger
	streamWG   sync.WaitGroup
}

// NewManagedProcess returns a process ready to Start based on the given
// config.
func NewManagedProcess(config ProcessConfig, logger golog.Logger) *ManagedProcess {
	return &ManagedProcess{
		config: config,
		logger: logger.Named(fmt.Sprintf("process.%s", config.Name)),
	}
}

// Start runs the process. For one-shot processes it blocks until the process
// exits and returns its terminal error, if any; context cancellation kills
// the process. For managed processes it returns once the process is running.
func (p *ManagedProcess) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.cmd != nil {
		p.mu.Unlock()
		return errors.New("process already started")
	}

	//nolint:gosec
	cmd := exec.CommandContext(ctx, p.config.Args[0], p.config.Args[1:]...)
	cmd.Dir = p.config.CWD
	if len(p.config.Env) != 0 {
		cmd.Env = append(os.Environ(), p.config.Env...)
	}

	var fileOut io.Writer
	if p.config.LogPath != "" {
		p.fileLogger = &lumberjack.Logger{
			Filename:   p.config.LogPath,
			MaxSize:    64, // megabytes
			MaxBackups: 2,
		}
		fileOut = p.fileLogger
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		p.mu.Unlock()
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		p.mu.Unlock()
		return err
	}

	if err := cmd.Start(); err != nil {
		p.mu.Unlock()
		return multierr.Combine(
			errors.Wrapf(err, "error starting process %q", p.config.Name),
			p.closeFileLogger(),
		)
	}
	p.cmd = cmd

	p.streamWG.Add(2)
	go p.stream("stdout", stdout, fileOut)
	go p.stream("stderr", stderr, fileOut)
	p.mu.Unlock()

	if !p.config.OneShot {
		return nil
	}
	return p.wait()
}

func (p *ManagedProcess) stream(name string, r io.Reader, fileOut io.Writer) {
	defer p.streamWG.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if p.config.Log {
			p.logger.Debugw(line, "stream", name)
		}
		if fileOut != nil {
			//nolint:errcheck
			fmt.Fprintln(fileOut, line)
		}
	}
}

func (p *ManagedProcess) wait() error {
	p.streamWG.Wait()
	err := p.cmd.Wait()
	if err != nil {
		err = errors.Wrapf(err, "process %q exited with failure", p.config.Name)
	}
	return multierr.Combine(err, p.closeFileLogger())
}

// Stop terminates a managed process and waits for it to exit. Calling Stop
// on a finished one-shot process is a no-op.
func (p *ManagedProcess) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.config.OneShot {
		return p.closeFileLogger()
	}
	if p.cmd.Process != nil {
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return multierr.Combine(err, p.closeFileLogger())
		}
	}
	p.streamWG.Wait()
	//nolint:errcheck
	p.cmd.Wait() // exit error expected after kill
	return p.closeFileLogger()
}

func (p *ManagedProcess) closeFileLogger() error {
	if p.fileLogger == nil {
		return nil
	}
	err := p.fileLogger.Close()
	p.fileLogger = nil
	return err
}

// Run is a convenience for configuring and running a one-shot process in one
// call.
func Run(ctx context.Context, config ProcessConfig, logger golog.Logger) error {
	config.OneShot = true
	if len(config.Args) == 0 {
		return errors.New("process config has no args")
	}
	return NewManagedProcess(config, logger).Start(ctx)
}
