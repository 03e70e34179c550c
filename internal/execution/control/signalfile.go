package control

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
)

// DefaultSignal announces that the side file holds new commands.
const DefaultSignal = syscall.SIGUSR1

// SignalFile is the signal plus side file transport: an external tool
// writes lines to the file, then signals the supervisor.
type SignalFile struct {
	path   string
	notify chan os.Signal
}

func NewSignalFile(path string) *SignalFile {
	return &SignalFile{path: path}
}

// Start subscribes to the control signal. The returned channel receives
// a value whenever the side file should be read.
func (s *SignalFile) Start() <-chan os.Signal {
	s.notify = make(chan os.Signal, 1)
	signal.Notify(s.notify, DefaultSignal)
	return s.notify
}

// Stop unsubscribes from the control signal.
func (s *SignalFile) Stop() {
	if s.notify != nil {
		signal.Stop(s.notify)
	}
}

// Read returns the non-empty lines of the side file.
func (s *SignalFile) Read() ([]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open control file: %w", err)
	}
	defer f.Close()

	var lines []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read control file: %w", err)
	}

	return lines, nil
}

// Send writes line to the side file and signals the process whose id
// is advertised in pidFile.
func Send(pidFile, path, line string) error {
	pid, err := ReadPidFile(pidFile)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(line+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write control file: %w", err)
	}

	if err := syscall.Kill(pid, DefaultSignal); err != nil {
		return fmt.Errorf("failed to signal supervisor %d: %w", pid, err)
	}

	return nil
}

// WritePidFile advertises the calling process id at path.
func WritePidFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// ReadPidFile reads a process id advertised by WritePidFile.
func ReadPidFile(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read pid file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return 0, errors.Join(fmt.Errorf("invalid pid file %s", path), err)
	}

	return pid, nil
}
