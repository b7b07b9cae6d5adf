package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/hakim/reconcore/internal/supervisor"
)

// ToolResult contains the result of a tool execution
type ToolResult struct {
	Stdout   []byte
	Stderr   string
	ExitCode int
}

// RunTool executes a tool binary with the given arguments and returns the
// result. Execution is delegated to the Process Supervisor, which handles
// concurrent pipe draining and the SIGTERM-then-SIGKILL timeout escalation;
// this wrapper buffers the line-oriented callback output back into the
// whole-output ToolResult shape every stage pipeline in this package expects.
func RunTool(ctx context.Context, binary string, args ...string) (*ToolResult, error) {
	proc := supervisor.New(ctx, binary, args...)

	var stdoutBuf, stderrBuf bytes.Buffer
	outcome, err := proc.Run(func(stream, line string) {
		switch stream {
		case "stdout":
			stdoutBuf.WriteString(line)
			stdoutBuf.WriteByte('\n')
		case "stderr":
			stderrBuf.WriteString(line)
			stderrBuf.WriteByte('\n')
		}
	})

	switch {
	case errors.Is(err, supervisor.ErrSpawnFailed):
		return nil, fmt.Errorf("failed to start command: %w", err)
	case err != nil:
		result := &ToolResult{Stdout: stdoutBuf.Bytes(), Stderr: stderrBuf.String(), ExitCode: outcome.ExitCode}
		return result, fmt.Errorf("command cancelled: %w", err)
	}

	result := &ToolResult{Stdout: stdoutBuf.Bytes(), Stderr: stderrBuf.String(), ExitCode: outcome.ExitCode}
	if result.ExitCode != 0 {
		return result, fmt.Errorf("command failed with exit code %d", result.ExitCode)
	}
	return result, nil
}
