// Package rlimit applies per-process resource ceilings to a worker
// before it executes its command.
package rlimit

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

const (
	// EnvCPU carries the cpu ceiling from supervisor to worker.
	EnvCPU = "PROCPOOL_RLIMIT_CPU"

	// EnvAddressSpace carries the address space ceiling.
	EnvAddressSpace = "PROCPOOL_RLIMIT_AS"
)

// Limits describes the ceilings for a single worker. Zero disables a limit.
type Limits struct {
	// CPUSeconds is the maximum cumulative cpu time in seconds
	CPUSeconds uint64 `conf:"cpu" json:"cpu"`

	// AddressSpace is the maximum virtual address space in bytes
	AddressSpace uint64 `conf:"as" json:"as"`
}

// DefaultAddressSpace leaves room for the reservations of the Go runtime
// and the thread stacks and malloc arenas of a cgo binary, which take
// well over 1 GiB of address space before a command allocates anything.
const DefaultAddressSpace = 16 << 30

// DefaultLimits returns the limits used when nothing is configured.
func DefaultLimits() Limits {
	return Limits{
		CPUSeconds:   60,
		AddressSpace: DefaultAddressSpace,
	}
}

// Apply sets the limits on the calling process. Soft and hard limits
// are set to the same value, so exceeding either terminates the
// process instead of only notifying it.
func Apply(l Limits) error {
	if l.CPUSeconds > 0 {
		if err := setrlimit(unix.RLIMIT_CPU, l.CPUSeconds); err != nil {
			return fmt.Errorf("failed to set RLIMIT_CPU: %w", err)
		}
	}

	if l.AddressSpace > 0 {
		if err := setrlimit(unix.RLIMIT_AS, l.AddressSpace); err != nil {
			return fmt.Errorf("failed to set RLIMIT_AS: %w", err)
		}
	}

	return nil
}

// Current returns the limits of the calling process, reporting
// unlimited values as zero.
func Current() (Limits, error) {
	var cpu, as unix.Rlimit

	if err := unix.Getrlimit(unix.RLIMIT_CPU, &cpu); err != nil {
		return Limits{}, err
	}

	if err := unix.Getrlimit(unix.RLIMIT_AS, &as); err != nil {
		return Limits{}, err
	}

	return Limits{
		CPUSeconds:   finite(cpu.Cur),
		AddressSpace: finite(as.Cur),
	}, nil
}

// Env encodes the limits as environment entries for a worker.
func (l Limits) Env() []string {
	return []string{
		EnvCPU + "=" + strconv.FormatUint(l.CPUSeconds, 10),
		EnvAddressSpace + "=" + strconv.FormatUint(l.AddressSpace, 10),
	}
}

// FromEnv decodes the limits passed by the supervisor. Missing
// entries yield zero, i.e. no limit.
func FromEnv() (Limits, error) {
	var l Limits

	cpu, err := parseEnv(EnvCPU)
	if err != nil {
		return l, err
	}

	as, err := parseEnv(EnvAddressSpace)
	if err != nil {
		return l, err
	}

	l.CPUSeconds = cpu
	l.AddressSpace = as

	return l, nil
}

func parseEnv(key string) (uint64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return 0, nil
	}

	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}

func setrlimit(resource int, v uint64) error {
	return unix.Setrlimit(resource, &unix.Rlimit{Cur: v, Max: v})
}

// infinity is RLIM_INFINITY as reported by getrlimit on linux.
const infinity = ^uint64(0)

func finite(v uint64) uint64 {
	if v == infinity {
		return 0
	}

	return v
}
