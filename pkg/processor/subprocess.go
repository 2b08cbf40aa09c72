package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/aye-aye-dev/fossa-node/pkg/logging"
	"github.com/aye-aye-dev/fossa-node/pkg/message"
)

// Subprocess is the Isolated Processor variant that execs a fresh
// cmd/fossa-child process per task (spec §4.2's original "fresh child
// process" contract, kept literally rather than re-architected into a
// goroutine boundary — see Local for that alternative). The task and
// its result cross the process boundary as one JSON line each, over
// stdin/stdout.
type Subprocess struct {
	binaryPath string
	logger     *logging.FieldLogger
}

// NewSubprocess builds a Subprocess processor that execs binaryPath
// (normally the fossa-child binary built alongside fossa-node) once per
// task.
func NewSubprocess(binaryPath string, logger *logging.Logger) *Subprocess {
	return &Subprocess{binaryPath: binaryPath, logger: logger.WithComponent("processor.subprocess")}
}

// Run satisfies governor.Processor by running the task in a child
// process rather than a goroutine, so a user model that corrupts
// memory or hangs past the caller's context cannot take the node down
// with it.
func (s *Subprocess) Run(ctx context.Context, procID string, submit message.TaskSubmit) message.Result {
	stdin, err := json.Marshal(submit)
	if err != nil {
		return message.Result{Exception: fmt.Sprintf("processor.subprocess: marshaling submit: %v", err)}
	}

	cmd := exec.CommandContext(ctx, s.binaryPath)
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	var result message.Result
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		if runErr != nil {
			return message.Result{Exception: fmt.Sprintf("child process for task_id=%s failed: %v (stderr: %s)", procID, runErr, stderr.String())}
		}
		return message.Result{Exception: fmt.Sprintf("child process for task_id=%s produced no decodable result: %v", procID, err)}
	}
	if runErr != nil && !result.Failed() {
		// The child wrote something before being killed (deadline, OOM);
		// trust the exit status over a partially-written success result.
		return message.Result{Exception: fmt.Sprintf("child process for task_id=%s exited abnormally: %v", procID, runErr)}
	}
	return result
}
