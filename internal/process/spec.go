package process

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/onuhq/onu/internal/logger"
)

// Spec describes a command to run, either once (Runner) or supervised (Process).
type Spec struct {
	Name    string        // label used for logs and log file names
	Command string        // command line; shell syntax is honored
	Args    []string      // extra arguments appended to Command, quoted when a shell is used
	WorkDir string        // optional working dir
	Env     []string      // full environment ("K=V"); nil inherits the parent's
	Log     logger.Config // optional persisted output for supervised processes
}

// Validate checks the fields every caller relies on.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("process requires name")
	}
	if strings.TrimSpace(s.Command) == "" {
		return fmt.Errorf("process %s requires command", s.Name)
	}
	return nil
}

// String renders the command line roughly as it will be executed.
func (s Spec) String() string {
	if len(s.Args) == 0 {
		return strings.TrimSpace(s.Command)
	}
	return strings.TrimSpace(s.Command) + " " + joinQuoted(s.Args)
}

// BuildCommand constructs an *exec.Cmd for the given spec.Command.
// It avoids invoking a shell when not necessary, and it also respects
// an explicit shell invocation already present in the command string
// (e.g., "sh -c 'echo hi'"), avoiding double-wrapping with another shell.
func (s *Spec) BuildCommand() *exec.Cmd {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		return getTrueCommand()
	}
	if _, afterC, ok := parseExplicitShell(cmdStr); ok {
		if len(s.Args) > 0 {
			afterC += " " + joinQuoted(s.Args)
		}
		return getShellCommand(afterC)
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		if len(s.Args) > 0 {
			cmdStr += " " + joinQuoted(s.Args)
		}
		return getShellCommand(cmdStr)
	}
	parts := strings.Fields(cmdStr)
	args := append(parts[1:], s.Args...)
	// #nosec G204
	return exec.Command(parts[0], args...)
}

// parseExplicitShell detects patterns like "sh -c <ARG>" or "/bin/sh -c <ARG>" at the
// beginning of cmdStr. It returns (shellPath, afterCArg, true) when matched.
// It preserves the substring after "-c " verbatim to avoid breaking quoting.
func parseExplicitShell(cmdStr string) (string, string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	candidates := []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "}
	for _, p := range candidates {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			// strip one pair of outer quotes so the shell parses the script itself
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return strings.Fields(p)[0], after, true
		}
	}
	return "", "", false
}

func joinQuoted(args []string) string {
	q := make([]string, len(args))
	for i, a := range args {
		q[i] = shellQuote(a)
	}
	return strings.Join(q, " ")
}

// shellQuote wraps a in single quotes unless it only holds safe characters.
func shellQuote(a string) string {
	if a == "" {
		return "''"
	}
	if strings.IndexFunc(a, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./=:@,+%", r))
	}) < 0 {
		return a
	}
	return "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
}
