package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aye-aye-dev/fossa-node/pkg/governor"
	"github.com/aye-aye-dev/fossa-node/pkg/httpapi"
	"github.com/aye-aye-dev/fossa-node/pkg/logging"
	"github.com/aye-aye-dev/fossa-node/pkg/message"
)

type okProcessor struct{}

func (okProcessor) Run(ctx context.Context, procID string, submit message.TaskSubmit) message.Result {
	return message.Result{ReturnValue: "done"}
}

func TestHandleSubmitAndStatusHappyPath(t *testing.T) {
	logger := logging.New(logging.DefaultConfig())
	g := governor.New(governor.Config{MaxConcurrentTasks: 4, PreviousTasksCapacity: 10}, "1:aaaaa", okProcessor{}, logger)
	require.NoError(t, g.RegisterClass("NothingEtl"))
	require.NoError(t, g.Start(context.Background()))
	defer g.Stop()

	srv := httpapi.NewServer(":0", g, nil, nil, logger)
	handler := srv.Handler()
	ts := httptest.NewServer(handler)
	defer ts.Close()

	body, _ := json.Marshal(map[string]string{"model_class": "NothingEtl"})
	resp, err := http.Post(ts.URL+"/task", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var submitted map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))
	taskID, _ := submitted["task_id"].(string)
	require.NotEmpty(t, taskID)

	require.Eventually(t, func() bool {
		statusResp, err := http.Get(ts.URL + "/task/" + taskID)
		if err != nil {
			return false
		}
		defer statusResp.Body.Close()
		var status map[string]any
		_ = json.NewDecoder(statusResp.Body).Decode(&status)
		return status["status"] == "complete"
	}, time.Second, 5*time.Millisecond)
}

func TestHandleSubmitRejectsUnknownClass(t *testing.T) {
	logger := logging.New(logging.DefaultConfig())
	g := governor.New(governor.Config{MaxConcurrentTasks: 4, PreviousTasksCapacity: 10}, "1:aaaaa", okProcessor{}, logger)
	require.NoError(t, g.Start(context.Background()))
	defer g.Stop()

	srv := httpapi.NewServer(":0", g, nil, nil, logger)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body, _ := json.Marshal(map[string]string{"model_class": "Unknown"})
	resp, err := http.Post(ts.URL+"/task", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleRootIsLivenessStub(t *testing.T) {
	logger := logging.New(logging.DefaultConfig())
	g := governor.New(governor.Config{MaxConcurrentTasks: 4, PreviousTasksCapacity: 10}, "1:aaaaa", okProcessor{}, logger)
	require.NoError(t, g.Start(context.Background()))
	defer g.Stop()

	srv := httpapi.NewServer(":0", g, nil, nil, logger)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "world", body["hello"])
}
