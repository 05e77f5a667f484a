package handlers_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"happysd/internal/admission"
	"happysd/internal/domain"
	"happysd/internal/httpapi"
	"happysd/internal/httpapi/handlers"
	"happysd/internal/store"
)

func newServer(t *testing.T) (http.Handler, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	mem.AddAccount(domain.Account{Username: "alice", APIKey: "k-valid"})
	mem.AddAccount(domain.Account{Username: "bob", APIKey: "k-bob"})

	logger := zerolog.Nop()
	gateway := admission.New(mem, mem, 10, logger)
	app := handlers.NewApp(gateway, mem, mem, logger)
	router := httpapi.NewRouter(app, httpapi.RouterOptions{Logger: logger})
	return router, mem
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeMsg(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestAddJob(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "success",
			body:       `{"apikey": "k-valid", "type": "txt", "prompt": "a cat"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing apikey",
			body:       `{"type": "txt", "prompt": "a cat"}`,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unknown apikey",
			body:       `{"apikey": "k-bogus", "type": "txt", "prompt": "a cat"}`,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unrecognized keys",
			body:       `{"apikey": "k-valid", "type": "txt", "prompt": "a cat", "wat": 1}`,
			wantStatus: http.StatusNotFound,
			wantMsg:    "provided one or more unrecognized keys",
		},
		{
			name:       "missing required keys",
			body:       `{"apikey": "k-valid", "type": "txt"}`,
			wantStatus: http.StatusNotFound,
			wantMsg:    "missing one or more required keys",
		},
		{
			name:       "missing reference image",
			body:       `{"apikey": "k-valid", "type": "img", "prompt": "a cat"}`,
			wantStatus: http.StatusNotFound,
			wantMsg:    "missing reference image",
		},
		{
			name:       "malformed body",
			body:       `{not json`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newServer(t)
			rec := doJSON(t, h, http.MethodPost, "/add_job", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %q)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus == http.StatusUnauthorized {
				if rec.Body.Len() != 0 {
					t.Fatalf("401 must carry an empty body, got %q", rec.Body.String())
				}
				return
			}
			if tt.wantMsg != "" {
				if got := decodeMsg(t, rec)["msg"]; got != tt.wantMsg {
					t.Fatalf("msg = %q, want %q", got, tt.wantMsg)
				}
			}
			if tt.wantStatus == http.StatusOK {
				out := decodeMsg(t, rec)
				if out["uuid"] == "" {
					t.Fatal("success response must carry a uuid")
				}
				if out["msg"] != "" {
					t.Fatalf("success msg = %q, want empty", out["msg"])
				}
			}
		})
	}
}

func TestAddJobQuota(t *testing.T) {
	h, mem := newServer(t)
	mem.AddAccount(domain.Account{Username: "carol", APIKey: "k-one", Quota: 1})

	body := `{"apikey": "k-one", "type": "txt", "prompt": "a cat"}`
	for i := 0; i < 2; i++ {
		rec := doJSON(t, h, http.MethodPost, "/add_job", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, rec.Code)
		}
	}
	rec := doJSON(t, h, http.MethodPost, "/add_job", body)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := decodeMsg(t, rec)["msg"]; got != "too many jobs in queue, please wait or cancel some" {
		t.Fatalf("msg = %q", got)
	}
}

func addJob(t *testing.T, h http.Handler, apikey string) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/add_job",
		fmt.Sprintf(`{"apikey": %q, "type": "txt", "prompt": "a cat"}`, apikey))
	if rec.Code != http.StatusOK {
		t.Fatalf("add_job: %d %s", rec.Code, rec.Body.String())
	}
	return decodeMsg(t, rec)["uuid"]
}

func TestCancelJob(t *testing.T) {
	h, mem := newServer(t)
	id := addJob(t, h, "k-valid")

	t.Run("unauthorized", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/cancel_job", `{"uuid": "x"}`)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("missing uuid", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/cancel_job", `{"apikey": "k-valid"}`)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d", rec.Code)
		}
		if got := decodeMsg(t, rec)["msg"]; got != "missing uuid" {
			t.Fatalf("msg = %q", got)
		}
	})

	t.Run("unknown uuid", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/cancel_job", `{"apikey": "k-valid", "uuid": "nope"}`)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d", rec.Code)
		}
		if got := decodeMsg(t, rec)["msg"]; got != "unable to find the job with uuid nope" {
			t.Fatalf("msg = %q", got)
		}
	})

	t.Run("pending job removed", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/cancel_job",
			fmt.Sprintf(`{"apikey": "k-valid", "uuid": %q}`, id))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		want := fmt.Sprintf("job with uuid %s removed", id)
		if got := decodeMsg(t, rec)["msg"]; got != want {
			t.Fatalf("msg = %q, want %q", got, want)
		}
	})

	t.Run("running job not cancellable", func(t *testing.T) {
		runningID := addJob(t, h, "k-valid")
		if err := mem.Update(t.Context(), runningID, domain.PatchStatus(domain.JobStatusRunning)); err != nil {
			t.Fatal(err)
		}
		rec := doJSON(t, h, http.MethodPost, "/cancel_job",
			fmt.Sprintf(`{"apikey": "k-valid", "uuid": %q}`, runningID))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("status = %d", rec.Code)
		}
		want := fmt.Sprintf("job %s is not in pending state, unable to cancel", runningID)
		if got := decodeMsg(t, rec)["msg"]; got != want {
			t.Fatalf("msg = %q, want %q", got, want)
		}
	})
}

func TestGetJobs(t *testing.T) {
	h, _ := newServer(t)
	id1 := addJob(t, h, "k-valid")
	id2 := addJob(t, h, "k-valid")
	addJob(t, h, "k-bob")

	t.Run("unauthorized", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/get_jobs", `{}`)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	listJobs := func(t *testing.T, body string) []map[string]any {
		rec := doJSON(t, h, http.MethodPost, "/get_jobs", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var out struct {
			Jobs []map[string]any `json:"jobs"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatal(err)
		}
		return out.Jobs
	}

	t.Run("by uuid", func(t *testing.T) {
		jobs := listJobs(t, fmt.Sprintf(`{"apikey": "k-valid", "uuid": %q}`, id1))
		if len(jobs) != 1 || jobs[0]["uuid"] != id1 {
			t.Fatalf("jobs = %v", jobs)
		}
	})

	t.Run("all owned jobs", func(t *testing.T) {
		jobs := listJobs(t, `{"apikey": "k-valid"}`)
		if len(jobs) != 2 {
			t.Fatalf("got %d jobs, want 2", len(jobs))
		}
	})

	t.Run("other owners job invisible", func(t *testing.T) {
		jobs := listJobs(t, fmt.Sprintf(`{"apikey": "k-bob", "uuid": %q}`, id2))
		if len(jobs) != 0 {
			t.Fatalf("jobs = %v", jobs)
		}
	})

	t.Run("generation parameters on the wire", func(t *testing.T) {
		jobs := listJobs(t, fmt.Sprintf(`{"apikey": "k-valid", "uuid": %q}`, id1))
		if len(jobs) != 1 {
			t.Fatalf("jobs = %v", jobs)
		}
		job := jobs[0]
		for _, key := range []string{"seed", "width", "height", "guidance_scale", "steps", "scheduler", "strength"} {
			if _, ok := job[key]; !ok {
				t.Errorf("response missing %q", key)
			}
		}
		if job["width"] != float64(domain.DefaultWidth) || job["scheduler"] != domain.DefaultScheduler {
			t.Fatalf("defaults not echoed: %v", job)
		}
	})
}

func TestRandomJobs(t *testing.T) {
	h, mem := newServer(t)
	id := addJob(t, h, "k-valid")
	if err := mem.Update(t.Context(), id, domain.PatchStatus(domain.JobStatusRunning)); err != nil {
		t.Fatal(err)
	}
	done := domain.JobStatusDone
	if err := mem.Update(t.Context(), id, domain.Patch{Status: &done}); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/random_jobs", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out struct {
		Jobs []map[string]any `json:"jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	for _, j := range out.Jobs {
		if _, ok := j["apikey"]; ok {
			t.Fatal("sample must not expose owner keys")
		}
		if j["status"] != "done" {
			t.Fatalf("sample contains %v job", j["status"])
		}
	}
}

func TestHealthz(t *testing.T) {
	h, _ := newServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeMsg(t, rec)["status"]; got != "ok" {
		t.Fatalf("status field = %q", got)
	}
}

func TestPages(t *testing.T) {
	h, _ := newServer(t)

	tests := []struct {
		path string
		want string
	}{
		{"/", "Submit New Job"},
		{"/restoration", "Image to restore"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s = %d", tt.path, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Fatalf("GET %s content type %q", tt.path, ct)
		}
		if !strings.Contains(rec.Body.String(), tt.want) {
			t.Fatalf("GET %s body missing %q", tt.path, tt.want)
		}
	}
}
