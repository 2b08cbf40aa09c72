package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/aye-aye-dev/fossa-node/pkg/errs"
	"github.com/aye-aye-dev/fossa-node/pkg/history"
	"github.com/aye-aye-dev/fossa-node/pkg/message"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"hello": "world"})
}

type submitRequest struct {
	ModelClass      string         `json:"model_class"`
	Method          string         `json:"method"`
	MethodKwargs    map[string]any `json:"method_kwargs"`
	ResolverContext map[string]any `json:"resolver_context"`
}

type submitResponse struct {
	TaskID                 string   `json:"task_id"`
	GovernorAcceptedIdent  string   `json:"governor_accepted_ident"`
	Metadata               metadata `json:"_metadata"`
}

type metadata struct {
	Links links `json:"links"`
}

type links struct {
	Task string `json:"task"`
}

// handleSubmit is POST <base>/task (spec §6).
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	if !s.governor.HasCapacity() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "node has no free capacity"})
		return
	}

	taskID, err := s.governor.Submit(message.TaskSubmit{
		ModelClass:      req.ModelClass,
		Method:          req.Method,
		MethodKwargs:    req.MethodKwargs,
		ResolverContext: req.ResolverContext,
	})
	if err != nil {
		var invalid *errs.InvalidTaskSpec
		if errors.As(err, &invalid) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	if s.metrics != nil {
		s.metrics.ObserveAdmitted()
	}
	s.hub.broadcast(event{Kind: "admitted", TaskID: taskID, ModelClass: req.ModelClass})

	writeJSON(w, http.StatusOK, submitResponse{
		TaskID:                taskID,
		GovernorAcceptedIdent: s.governor.NodeID(),
		Metadata:              metadata{Links: links{Task: "/task/" + taskID}},
	})
}

type taskStatusResponse struct {
	Status   string  `json:"status"`
	Started  string  `json:"started"`
	Finished *string `json:"finished,omitempty"`
	Results  *result `json:"results,omitempty"`
}

type result struct {
	ReturnValue any            `json:"return_value,omitempty"`
	Exception   string         `json:"exception,omitempty"`
	Traceback   string         `json:"traceback,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// handleStatus is GET <base>/task/<id> (spec §6).
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	entry, ok := s.governor.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown task_id"})
		return
	}

	resp := taskStatusResponse{Started: entry.Started.Format(timeLayout)}
	if entry.Finished == nil {
		resp.Status = "running"
		writeJSON(w, http.StatusOK, resp)
		return
	}

	finished := entry.Finished.Format(timeLayout)
	resp.Finished = &finished
	resp.Results = &result{
		ReturnValue: entry.Result.ReturnValue,
		Exception:   entry.Result.Exception,
		Traceback:   entry.Result.Traceback,
		Payload:     entry.Result.Payload,
	}
	if entry.Result.Failed() {
		resp.Status = "failed"
	} else {
		resp.Status = "complete"
	}
	writeJSON(w, http.StatusOK, resp)
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

type nodeInfoResponse struct {
	NodeInfo             nodeInfo `json:"node_info"`
	RunningTasks         int      `json:"running_tasks"`
	RecentCompletedTasks []string `json:"recent_completed_tasks"`
}

type nodeInfo struct {
	NodeIdent          string `json:"node_ident"`
	MaxConcurrentTasks int    `json:"max_concurrent_tasks"`
}

const recentCompletedLimit = 20

// handleNodeInfo is GET <base>/node_info (spec §6).
func (s *Server) handleNodeInfo(w http.ResponseWriter, r *http.Request) {
	previous := s.governor.PreviousTasks()
	recent := make([]string, 0, recentCompletedLimit)
	for i := len(previous) - 1; i >= 0 && len(recent) < recentCompletedLimit; i-- {
		recent = append(recent, previous[i].ProcID)
	}

	writeJSON(w, http.StatusOK, nodeInfoResponse{
		NodeInfo: nodeInfo{
			NodeIdent:          s.governor.NodeID(),
			MaxConcurrentTasks: s.governor.MaxConcurrentTasks(),
		},
		RunningTasks:         len(s.governor.RunningTasks()),
		RecentCompletedTasks: recent,
	})
}

// handleSearch is GET <base>/tasks/search?q= (SPEC_FULL.md supplement).
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing q parameter"})
		return
	}
	if s.history == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "search index not enabled"})
		return
	}

	ids, err := s.history.Search(query, recentCompletedLimit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task_ids": ids})
}

// onCompletion is the completion handler registered for
// message.DefaultSource: it indexes failed tasks for search, updates
// metrics, and broadcasts a live event.
func (s *Server) onCompletion(taskResult message.TaskResult, original message.TaskSubmit) {
	if s.metrics != nil {
		s.metrics.ObserveCompletion(taskResult.Result.Failed())
	}

	if s.history != nil && taskResult.Result.Failed() {
		_ = s.history.Upsert(history.Document{
			ProcID:     taskResult.TaskID,
			ModelClass: original.ModelClass,
			Exception:  taskResult.Result.Exception,
			Traceback:  taskResult.Result.Traceback,
		})
	}

	kind := "complete"
	if taskResult.Result.Failed() {
		kind = "failed"
	}
	s.hub.broadcast(event{Kind: kind, TaskID: taskResult.TaskID, ModelClass: original.ModelClass})
}
