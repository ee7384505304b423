//go:build linux

// Command run-guard applies resource limits and an optional seccomp filter to
// itself and then execs the given program, so the limits bind the student
// binary without any further wrapper process.
//
//	run-guard [-cpu N] [-as MB] [-fsize MB] [-nproc N] [-stack MB] [-seccomp profile] -- prog args...
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"
)

type guardOptions struct {
	cpuSeconds     uint64
	addressSpaceMB uint64
	fileSizeMB     uint64
	processes      uint64
	stackMB        uint64
	seccompProfile string
	command        []string
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "run-guard:", err.Error())
		os.Exit(126)
	}
}

func run(args []string) error {
	opts, err := parseArgs(args, os.Stderr)
	if err != nil {
		return err
	}
	if err := applyRlimits(opts); err != nil {
		return err
	}
	if opts.seccompProfile != "" {
		if err := applySeccomp(opts.seccompProfile); err != nil {
			return err
		}
	}
	cmdPath, err := exec.LookPath(opts.command[0])
	if err != nil {
		return fmt.Errorf("resolve command: %w", err)
	}
	return unix.Exec(cmdPath, opts.command, os.Environ())
}

func parseArgs(args []string, output io.Writer) (guardOptions, error) {
	var opts guardOptions
	fs := flag.NewFlagSet("run-guard", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Uint64Var(&opts.cpuSeconds, "cpu", 0, "CPU time limit in seconds")
	fs.Uint64Var(&opts.addressSpaceMB, "as", 0, "address space limit in MB")
	fs.Uint64Var(&opts.fileSizeMB, "fsize", 0, "max file size in MB")
	fs.Uint64Var(&opts.processes, "nproc", 0, "max processes for the user")
	fs.Uint64Var(&opts.stackMB, "stack", 0, "stack size limit in MB")
	fs.StringVar(&opts.seccompProfile, "seccomp", "", "seccomp profile (YAML or JSON)")
	if err := fs.Parse(args); err != nil {
		return guardOptions{}, err
	}
	opts.command = fs.Args()
	if len(opts.command) == 0 {
		return guardOptions{}, errors.New("command is required after --")
	}
	return opts, nil
}

func applyRlimits(opts guardOptions) error {
	const mb = 1024 * 1024
	limits := []struct {
		resource int
		value    uint64
		name     string
	}{
		{unix.RLIMIT_CPU, opts.cpuSeconds, "cpu"},
		{unix.RLIMIT_AS, opts.addressSpaceMB * mb, "address space"},
		{unix.RLIMIT_FSIZE, opts.fileSizeMB * mb, "file size"},
		{unix.RLIMIT_NPROC, opts.processes, "nproc"},
		{unix.RLIMIT_STACK, opts.stackMB * mb, "stack"},
	}
	for _, l := range limits {
		if l.value == 0 {
			continue
		}
		if err := unix.Setrlimit(l.resource, &unix.Rlimit{Cur: l.value, Max: l.value}); err != nil {
			return fmt.Errorf("set %s limit: %w", l.name, err)
		}
	}
	return nil
}

type seccompConfig struct {
	DefaultAction string           `yaml:"defaultAction"`
	Syscalls      []seccompSyscall `yaml:"syscalls"`
}

type seccompSyscall struct {
	Names  []string `yaml:"names"`
	Action string   `yaml:"action"`
}

func loadSeccompConfig(path string) (seccompConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return seccompConfig{}, fmt.Errorf("read seccomp profile: %w", err)
	}
	var cfg seccompConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return seccompConfig{}, fmt.Errorf("parse seccomp profile: %w", err)
	}
	return cfg, nil
}

func applySeccomp(profilePath string) error {
	cfg, err := loadSeccompConfig(profilePath)
	if err != nil {
		return err
	}
	defaultAction, err := parseSeccompAction(cfg.DefaultAction)
	if err != nil {
		return err
	}
	filter, err := seccomp.NewFilter(defaultAction)
	if err != nil {
		return fmt.Errorf("create seccomp filter: %w", err)
	}
	defer filter.Release()
	for _, rule := range cfg.Syscalls {
		action, err := parseSeccompAction(rule.Action)
		if err != nil {
			return err
		}
		for _, name := range rule.Names {
			call, err := seccomp.GetSyscallFromName(name)
			if err != nil {
				// Unknown on this architecture.
				continue
			}
			if err := filter.AddRule(call, action); err != nil {
				return fmt.Errorf("add seccomp rule %s: %w", name, err)
			}
		}
	}
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("set no new privs: %w", err)
	}
	if err := filter.Load(); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}
	return nil
}

func parseSeccompAction(action string) (seccomp.ScmpAction, error) {
	switch strings.ToUpper(strings.TrimSpace(action)) {
	case "", "SCMP_ACT_ALLOW":
		return seccomp.ActAllow, nil
	case "SCMP_ACT_ERRNO":
		return seccomp.ActErrno.SetReturnCode(int16(unix.EPERM)), nil
	case "SCMP_ACT_KILL", "SCMP_ACT_KILL_PROCESS":
		return seccomp.ActKillProcess, nil
	default:
		return seccomp.ActKillProcess, fmt.Errorf("unsupported seccomp action: %s", action)
	}
}
