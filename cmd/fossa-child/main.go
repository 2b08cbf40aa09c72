// Command fossa-child is the Isolated Processor child-process
// entrypoint: it is execed by the governor's Subprocess processor
// variant once per task (spec §4.2). It reads one TaskSubmit as JSON
// from stdin, runs the named model, and writes one Result as JSON to
// stdout. Exactly one task per process, matching the source's "fresh
// child process" isolation model.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aye-aye-dev/fossa-node/pkg/logging"
	"github.com/aye-aye-dev/fossa-node/pkg/message"
	"github.com/aye-aye-dev/fossa-node/pkg/processor"
	"github.com/aye-aye-dev/fossa-node/pkg/processor/models"
)

func main() {
	logger := logging.New(logging.DefaultConfig()).WithComponent("fossa-child")

	input, err := io.ReadAll(os.Stdin)
	if err != nil {
		writeResult(message.Result{Exception: fmt.Sprintf("fossa-child: reading stdin: %v", err)})
		return
	}

	var submit message.TaskSubmit
	if err := json.Unmarshal(input, &submit); err != nil {
		writeResult(message.Result{Exception: fmt.Sprintf("fossa-child: decoding task submit: %v", err)})
		return
	}

	registry := processor.NewRegistry()
	registry.Register("NothingEtl", models.NewNothingEtl)
	registry.Register("PartialFailure", models.NewPartialFailure)
	registry.Register("SecondTimeLucky", models.NewSecondTimeLucky)

	local := processor.NewLocal(registry, nil, logging.New(logging.DefaultConfig()))
	logger.Debugf("running task_id=%s model_class=%s", submit.TaskID, submit.ModelClass)

	result := local.Run(context.Background(), submit.TaskID, submit)
	writeResult(result)
}

func writeResult(result message.Result) {
	if err := json.NewEncoder(os.Stdout).Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "fossa-child: encoding result: %v\n", err)
		os.Exit(1)
	}
}
