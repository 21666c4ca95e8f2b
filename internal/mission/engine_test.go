package mission

import (
	"sync"
	"testing"

	"github.com/bluenviron/gomavlib/v3"

	"github.com/mavgcs/gcs-core/internal/logging"
	"github.com/mavgcs/gcs-core/internal/modes"
)

func newTestEngine(flavor modes.Flavor) (*Engine, *[]any) {
	sent := &[]any{}
	send := func(msg any) error {
		*sent = append(*sent, msg)
		return nil
	}
	inbox := make(chan *gomavlib.EventFrame)
	return New("sys1", 1, 1, flavor, send, inbox, logging.New("[test] ")), sent
}

func TestResumeRunsTheSameSequenceAsStart(t *testing.T) {
	e, sent := newTestEngine(modes.FlavorArduPilot)
	var modesSet []string
	setMode := func(name string) error {
		modesSet = append(modesSet, name)
		return nil
	}

	if err := e.Resume(setMode); err != nil {
		t.Fatalf("Resume returned error: %v", err)
	}
	if e.Status() != StatusRunning {
		t.Errorf("Status() after Resume = %v, want %v", e.Status(), StatusRunning)
	}
	if len(modesSet) != 1 || modesSet[0] != "AUTO" {
		t.Errorf("modesSet = %v, want [AUTO]", modesSet)
	}
	if len(*sent) != 1 {
		t.Errorf("expected one MISSION_SET_CURRENT frame, got %d", len(*sent))
	}
}

func TestStatusIsSafeForConcurrentReadsAndWrites(t *testing.T) {
	e, _ := newTestEngine(modes.FlavorArduPilot)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			e.setStatus(StatusUploading)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = e.Status()
		}
	}()
	wg.Wait()
}
