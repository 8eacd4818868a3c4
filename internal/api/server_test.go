package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgallion1/x12ctx/internal/config"
	"github.com/dgallion1/x12ctx/internal/pipeline"
	"github.com/dgallion1/x12ctx/internal/schema"
)

const testKey = "secret"

const claimFile = "ISA*00*          *00*          *ZZ*SUBMITTERS ID  *ZZ*RECEIVERS ID   *030101*1253*U*00401*000000905*1*T*:~" +
	"GS*HC*SENDER*RECEIVER*20030101*1253*1*X*004010X098A1~" +
	"ST*837*0001~" +
	"BHT*0019*00*0123*20030101*1253*CH~" +
	"HL*1**20*1~" +
	"NM1*85*2*BILLING*****XX*1234567893~" +
	"HL*2*1*22*0~" +
	"SBR*P*18*******MB~" +
	"NM1*IL*1*DOE*JOHN****MI*123456789A~" +
	"CLM*A1*100***11::1*Y*A*Y*Y*C~" +
	"LX*1~" +
	"SV1*HC:99213*100*UN*1***1~" +
	"CLM*A2*50***11::1*Y*A*Y*Y*C~" +
	"SE*12*0001~" +
	"GE*1*1~" +
	"IEA*1*000000905~"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Config{
		APIKey:         testKey,
		MapPath:        filepath.Join("..", "..", "maps"),
		ControlMap:     "x12.control.00401.yaml",
		MapIndex:       "maps.yaml",
		WorkerCount:    1,
		MaxQueueSize:   4,
		MaxUploadBytes: 1 << 20,
		JobTTL:         time.Hour,
	}
	index, err := schema.LoadIndex(filepath.Join(cfg.MapPath, cfg.MapIndex))
	if err != nil {
		t.Fatalf("load index: %v", err)
	}
	log := slog.New(slog.DiscardHandler)
	orch := pipeline.NewOrchestrator(cfg, log)
	orch.Start(context.Background())
	t.Cleanup(orch.Stop)
	return NewServer(orch, index, log, cfg)
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	req.Header.Set("Authorization", "Bearer "+testKey)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, data, loopID string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "../claims.x12")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(data))
	if loopID != "" {
		mw.WriteField("loop_id", loopID)
	}
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/parse", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func waitDone(t *testing.T, s *Server, jobID string) pipeline.JobSnapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/parse/"+jobID+"/status", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status: %d %s", rec.Code, rec.Body.String())
		}
		var snap pipeline.JobSnapshot
		decode(t, rec, &snap)
		if snap.Status != pipeline.StatusQueued && snap.Status != pipeline.StatusParsing {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not finish")
	return pipeline.JobSnapshot{}
}

func TestHealth_NoAuth(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestAuth(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic " + testKey},
		{"wrong key", "Bearer nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/maps", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestListMaps(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/maps", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Maps []schema.IndexEntry `json:"maps"`
	}
	decode(t, rec, &body)
	if len(body.Maps) != 4 {
		t.Errorf("expected 4 index entries, got %d", len(body.Maps))
	}
}

func TestParse_EndToEnd(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, uploadRequest(t, claimFile, "2300"))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var sub struct {
		JobID   string `json:"job_id"`
		LoopID  string `json:"loop_id"`
		PollURL string `json:"poll_url"`
	}
	decode(t, rec, &sub)
	if sub.LoopID != "2300" || sub.PollURL != "/api/parse/"+sub.JobID+"/status" {
		t.Errorf("unexpected submit response: %+v", sub)
	}

	snap := waitDone(t, s, sub.JobID)
	if snap.Status != pipeline.StatusCompleted {
		t.Fatalf("expected completed, got %q (%v)", snap.Status, snap.Progress.Errors)
	}
	if snap.Filename != "claims.x12" {
		t.Errorf("filename not sanitized: %q", snap.Filename)
	}

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/parse/"+sub.JobID+"/trees", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Result struct {
			Trees []struct {
				Type     string            `json:"type"`
				ID       string            `json:"id"`
				Children []json.RawMessage `json:"children"`
			} `json:"trees"`
			Interchanges []struct {
				ControlNumber string `json:"control_number"`
			} `json:"interchanges"`
		} `json:"result"`
	}
	decode(t, rec, &body)
	var claims []int
	for _, tree := range body.Result.Trees {
		if tree.ID == "2300" {
			claims = append(claims, len(tree.Children))
		}
	}
	// CLM plus the 2400 loop, then a bare CLM.
	if len(claims) != 2 || claims[0] != 2 || claims[1] != 1 {
		t.Errorf("unexpected claim trees: %v", claims)
	}
	if len(body.Result.Interchanges) != 1 || body.Result.Interchanges[0].ControlNumber != "000000905" {
		t.Errorf("unexpected interchanges: %+v", body.Result.Interchanges)
	}

	// Same content and loop is served from the finished job.
	rec = do(t, s, uploadRequest(t, claimFile, "2300"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for a repeat upload, got %d", rec.Code)
	}
	var again struct {
		JobID string `json:"job_id"`
	}
	decode(t, rec, &again)
	if again.JobID != sub.JobID {
		t.Errorf("expected job %s to be reused, got %s", sub.JobID, again.JobID)
	}
}

func TestParse_BadRequests(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/parse", bytes.NewBufferString("not multipart"))
	if rec := do(t, s, req); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-multipart body, got %d", rec.Code)
	}
	if rec := do(t, s, uploadRequest(t, "", "")); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty file, got %d", rec.Code)
	}
}

func TestParseStatus_NotFound(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/api/parse/nope/status", "/api/parse/nope/trees"} {
		rec := do(t, s, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, rec.Code)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"claims.x12":          "claims.x12",
		"../../etc/passwd":    "passwd",
		`C:\edi\in\batch.edi`: "batch.edi",
		"":                    "unnamed",
		"..":                  "_",
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
