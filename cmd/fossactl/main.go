// Command fossactl is a thin CLI client for the HTTP adapter (spec §6):
// submit a task, poll its status, or print node_info. Flags compose
// like the teacher's noisefs CLI: a handful of top-level flags plus one
// subcommand name from os.Args[1].
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/aye-aye-dev/fossa-node/pkg/util"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	node := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
	base := node.String("node", "http://localhost:8080", "Base URL of the fossa-node HTTP adapter")
	requireToken := node.Bool("token", false, "Prompt for a hidden admin override token")

	switch os.Args[1] {
	case "submit":
		modelClass := node.String("model-class", "", "Accepted model class to run")
		method := node.String("method", "", "Method name passed through to the model")
		node.Parse(os.Args[2:])
		runSubmit(*base, *modelClass, *method, *requireToken)
	case "status":
		taskID := node.String("task-id", "", "task_id returned by submit")
		node.Parse(os.Args[2:])
		runStatus(*base, *taskID)
	case "node-info":
		node.Parse(os.Args[2:])
		runNodeInfo(*base)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: fossactl <submit|status|node-info> [flags]")
}

func runSubmit(base, modelClass, method string, requireToken bool) {
	if modelClass == "" {
		fmt.Fprintln(os.Stderr, "fossactl submit: -model-class is required")
		os.Exit(1)
	}

	var token string
	if requireToken {
		t, err := util.PromptPassword("Admin override token: ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "fossactl: %v\n", err)
			os.Exit(1)
		}
		token = t
	}

	body, _ := json.Marshal(map[string]any{
		"model_class": modelClass,
		"method":      method,
	})

	req, err := http.NewRequest(http.MethodPost, base+"/task", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "fossactl: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	printResponse(req)
}

func runStatus(base, taskID string) {
	if taskID == "" {
		fmt.Fprintln(os.Stderr, "fossactl status: -task-id is required")
		os.Exit(1)
	}
	req, err := http.NewRequest(http.MethodGet, base+"/task/"+taskID, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fossactl: %v\n", err)
		os.Exit(1)
	}
	printResponse(req)
}

func runNodeInfo(base string) {
	req, err := http.NewRequest(http.MethodGet, base+"/node_info", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fossactl: %v\n", err)
		os.Exit(1)
	}
	printResponse(req)
}

func printResponse(req *http.Request) {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fossactl: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var pretty bytes.Buffer
	if json.Indent(&pretty, body, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(body))
	}

	if resp.StatusCode >= 400 {
		os.Exit(1)
	}
}
