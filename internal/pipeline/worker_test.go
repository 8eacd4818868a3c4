package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgallion1/x12ctx/internal/reader"
)

var testMaps = reader.Config{MapPath: filepath.Join("..", "..", "maps")}

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
	"SE*11*0001~" +
	"GE*1*1~" +
	"IEA*1*000000905~"

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestWorker_Process(t *testing.T) {
	job := NewJob("claim.x12", "2300", []byte(claimFile))
	NewWorker(testMaps, discard()).Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q (errors %v)", snap.Status, snap.Progress.Errors)
	}
	// 15 segments, 3 of which share the claim tree.
	if snap.Progress.Segments != 15 || snap.Progress.Trees != 13 {
		t.Errorf("expected 15 segments in 13 trees, got %d in %d", snap.Progress.Segments, snap.Progress.Trees)
	}
	if snap.Progress.Diagnostics != 0 {
		t.Errorf("expected no diagnostics, got %d", snap.Progress.Diagnostics)
	}
	res := job.Result()
	if len(res.Interchanges) != 1 || res.Interchanges[0].ControlNumber != "000000905" {
		t.Errorf("unexpected interchanges: %+v", res.Interchanges)
	}
	if job.FileData() != nil {
		t.Error("expected the upload to be released after processing")
	}
}

func TestWorker_Process_TrailerDiagnostics(t *testing.T) {
	data := strings.Replace(claimFile, "SE*11*0001", "SE*99*0001", 1)
	job := NewJob("claim.x12", "", []byte(data))
	NewWorker(testMaps, discard()).Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q", snap.Status)
	}
	if snap.Progress.Diagnostics != 1 {
		t.Errorf("expected 1 diagnostic, got %d", snap.Progress.Diagnostics)
	}
}

func TestWorker_Process_UnknownVersion(t *testing.T) {
	data := strings.Replace(claimFile, "004010X098A1", "005010X222A1", 1)
	job := NewJob("claim.x12", "", []byte(data))
	NewWorker(testMaps, discard()).Process(context.Background(), job)

	snap := job.Snapshot()
	// ISA is yielded before GS fails to resolve.
	if snap.Status != StatusPartial || snap.Phase != "parsing" {
		t.Fatalf("expected partial while parsing, got %q/%q", snap.Status, snap.Phase)
	}
	if len(snap.Progress.Errors) != 1 || !strings.Contains(snap.Progress.Errors[0], "map not found") {
		t.Errorf("unexpected errors: %v", snap.Progress.Errors)
	}
}

func TestWorker_Process_MissingMaps(t *testing.T) {
	job := NewJob("claim.x12", "", []byte(claimFile))
	NewWorker(reader.Config{MapPath: t.TempDir()}, discard()).Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusFailed || snap.Phase != "opening" {
		t.Errorf("expected failed while opening, got %q/%q", snap.Status, snap.Phase)
	}
}

func TestWorker_Process_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	job := NewJob("claim.x12", "", []byte(claimFile))
	NewWorker(testMaps, discard()).Process(ctx, job)

	snap := job.Snapshot()
	// Cancellation says nothing about the interchange.
	if snap.Status != StatusFailed || snap.Phase != "interrupted" {
		t.Errorf("expected failed and interrupted, got %q/%q", snap.Status, snap.Phase)
	}
}
