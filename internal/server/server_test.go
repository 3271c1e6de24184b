package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/bouncepath/internal/store"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	r, _ := newTestRunner(t)
	s := NewServer("127.0.0.1:0", r)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return s, ts
}

func waitForJob(t *testing.T, s *Server, id string) Job {
	t.Helper()
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		job, exists := s.jobManager.GetJob(id)
		if !exists {
			t.Fatalf("Job %s disappeared", id)
		}
		if job.State.Finished() {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Job %s did not finish in time", id)
	return Job{}
}

func postJob(t *testing.T, ts *httptest.Server, body []byte) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/v1/jobs", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	return resp
}

func TestServer_CreateJobAndOutcomes(t *testing.T) {
	s, ts := newTestServer(t)

	body, err := json.Marshal(testConfig(t, t.TempDir()))
	if err != nil {
		t.Fatalf("Failed to marshal config: %v", err)
	}
	resp := postJob(t, ts, body)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}
	var created Job
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("Failed to decode job: %v", err)
	}
	if created.ID == "" {
		t.Fatal("Created job should have an ID")
	}

	finished := waitForJob(t, s, created.ID)
	if finished.State != StateCompleted {
		t.Fatalf("Job should complete, got %s (%s)", finished.State, finished.Error)
	}

	getResp, err := http.Get(ts.URL + "/api/v1/jobs/" + created.ID)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer getResp.Body.Close()
	var status jobStatus
	if err := json.NewDecoder(getResp.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if status.Improvements != 2 || status.Elapsed <= 0 {
		t.Errorf("Unexpected status: improvements %d, elapsed %g", status.Improvements, status.Elapsed)
	}

	listResp, err := http.Get(ts.URL + "/api/v1/jobs")
	if err != nil {
		t.Fatalf("GET list failed: %v", err)
	}
	defer listResp.Body.Close()
	var jobs []Job
	if err := json.NewDecoder(listResp.Body).Decode(&jobs); err != nil {
		t.Fatalf("Failed to decode list: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != created.ID {
		t.Errorf("List should contain the created job, got %d jobs", len(jobs))
	}

	outResp, err := http.Get(ts.URL + "/api/v1/outcomes")
	if err != nil {
		t.Fatalf("GET outcomes failed: %v", err)
	}
	defer outResp.Body.Close()
	if outResp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 for outcomes, got %d", outResp.StatusCode)
	}
	var outcomes []store.PairOutcome
	if err := json.NewDecoder(outResp.Body).Decode(&outcomes); err != nil {
		t.Fatalf("Failed to decode outcomes: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].RunID != created.ID || outcomes[0].Status != store.StatusOK {
		t.Errorf("Unexpected outcomes: %+v", outcomes)
	}
}

func TestServer_CreateJobRejectsBadInput(t *testing.T) {
	_, ts := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"potential":`},
		{"unknown field", `{"potential":{"fields":1},"colour":"red"}`},
		{"invalid config", `{"potential":{"fields":1,"terms":[]},"vacua":{"false":[0],"true":[1]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJob(t, ts, []byte(tt.body))
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestServer_JobNotFound(t *testing.T) {
	_, ts := newTestServer(t)

	for _, path := range []string{"/api/v1/jobs/missing", "/api/v1/jobs/missing/stream"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, resp.StatusCode)
		}
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/jobs/missing", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("DELETE: expected 404, got %d", resp.StatusCode)
	}
}

func TestServer_CancelFinishedJob(t *testing.T) {
	s, ts := newTestServer(t)

	job := s.jobManager.CreateJob(testConfig(t, t.TempDir()))
	s.jobManager.UpdateJob(job.ID, func(j *Job) { j.State = StateCompleted })

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/jobs/"+job.ID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409, got %d", resp.StatusCode)
	}
}

func TestServer_CancelPendingJob(t *testing.T) {
	s, ts := newTestServer(t)

	cancelled := make(chan struct{})
	job := s.jobManager.CreateJob(testConfig(t, t.TempDir()))
	s.jobManager.setCancel(job.ID, func() { close(cancelled) })

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/jobs/"+job.ID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("Expected 202, got %d", resp.StatusCode)
	}
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Error("Cancel function was not called")
	}
}

func TestServer_StreamFinishedJob(t *testing.T) {
	s, ts := newTestServer(t)

	job := s.jobManager.CreateJob(testConfig(t, t.TempDir()))
	s.jobManager.UpdateJob(job.ID, func(j *Job) {
		j.State = StateCompleted
		j.Improvements = 4
		j.BestAction = 42
	})

	resp, err := http.Get(ts.URL + "/api/v1/jobs/" + job.ID + "/stream")
	if err != nil {
		t.Fatalf("GET stream failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected text/event-stream, got %q", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	var events []ProgressEvent
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event ProgressEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			t.Fatalf("Bad event payload %q: %v", line, err)
		}
		events = append(events, event)
	}

	if len(events) != 1 {
		t.Fatalf("Expected a single event for a finished job, got %d", len(events))
	}
	if events[0].State != StateCompleted || events[0].Improvements != 4 || events[0].BestAction != 42 {
		t.Errorf("Unexpected event: %+v", events[0])
	}
}

func TestServer_OutcomesWithoutLedger(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/outcomes")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestServer_CORS(t *testing.T) {
	_, ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/jobs", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS failed: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Missing CORS header")
	}
}

func TestEventBroadcaster(t *testing.T) {
	eb := NewEventBroadcaster()

	ch1 := eb.Subscribe("job-1")
	ch2 := eb.Subscribe("job-1")
	other := eb.Subscribe("job-2")

	event := ProgressEvent{JobID: "job-1", State: StateRunning, Improvements: 1, BestAction: 10}
	eb.Broadcast(event)

	for i, ch := range []chan ProgressEvent{ch1, ch2} {
		select {
		case got := <-ch:
			if got.Improvements != 1 {
				t.Errorf("client %d: expected improvement 1, got %d", i, got.Improvements)
			}
		case <-time.After(time.Second):
			t.Errorf("client %d: timeout waiting for event", i)
		}
	}
	select {
	case <-other:
		t.Error("job-2 subscriber should not receive job-1 events")
	default:
	}

	// late subscribers are primed with the last event
	late := eb.Subscribe("job-1")
	select {
	case got := <-late:
		if got.BestAction != 10 {
			t.Errorf("expected primed event, got %+v", got)
		}
	default:
		t.Error("late subscriber should receive the last event")
	}

	eb.Unsubscribe("job-1", ch1)
	eb.Unsubscribe("job-1", ch1)
	if _, ok := <-ch1; ok {
		t.Error("unsubscribed channel should be closed")
	}
	eb.Unsubscribe("job-1", ch2)
	eb.Unsubscribe("job-1", late)
	eb.Unsubscribe("job-2", other)
}
