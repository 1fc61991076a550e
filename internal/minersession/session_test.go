package minersession

import (
	"testing"
	"time"

	"github.com/cnpool/poolcore/internal/template"
)

func testConfig() Config {
	return Config{StartingDifficulty: 1000, TargetTimeSeconds: 10}
}

func testTemplate(height uint64) *template.BlockTemplate {
	return &template.BlockTemplate{
		BlockhashingBlob: "aabbccdd",
		Height:           height,
		Difficulty:       500000,
	}
}

func TestSessionStartsNewThenLogsIn(t *testing.T) {
	s := New("4Atest...", "127.0.0.1:1234", testConfig())
	if s.State() != StateNew {
		t.Fatalf("initial state = %v, want New", s.State())
	}
	if s.AcceptsWork() {
		t.Error("a New session should not accept work")
	}
	if !s.MarkLoggedIn() {
		t.Fatal("expected MarkLoggedIn to succeed from New")
	}
	if s.State() != StateLoggedIn {
		t.Fatalf("state after login = %v, want LoggedIn", s.State())
	}
	if s.MarkLoggedIn() {
		t.Error("MarkLoggedIn should be a no-op once already logged in")
	}
}

func TestGetJobTransitionsToWorking(t *testing.T) {
	s := New("4Atest...", "127.0.0.1:1234", testConfig())
	s.MarkLoggedIn()

	push, err := s.GetJob(testTemplate(100))
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if push.JobID == "" || push.Blob == "" || push.Target == "" {
		t.Fatalf("incomplete job push: %+v", push)
	}
	if s.State() != StateWorking {
		t.Fatalf("state after GetJob = %v, want Working", s.State())
	}

	if _, ok := s.FindJob(push.JobID); !ok {
		t.Error("expected the issued job to be findable in the session's registry")
	}
}

func TestGetJobRejectsNilTemplate(t *testing.T) {
	s := New("4Atest...", "127.0.0.1:1234", testConfig())
	s.MarkLoggedIn()
	if _, err := s.GetJob(nil); err == nil {
		t.Error("expected an error for a nil template")
	}
}

func TestRecordNonceDuplicateValues(t *testing.T) {
	s := New("4Atest...", "127.0.0.1:1234", testConfig())
	s.MarkLoggedIn()
	push, _ := s.GetJob(testTemplate(100))

	first := s.RecordNonce(push.JobID, "deadbeef")
	second := s.RecordNonce(push.JobID, "deadbeef")
	if first == second {
		t.Fatalf("expected distinct outcomes for first vs repeated submission, got %v twice", first)
	}
}

func TestRetargetJobDeliversOnOutbound(t *testing.T) {
	s := New("4Atest...", "127.0.0.1:1234", testConfig())
	s.MarkLoggedIn()

	if err := s.RetargetJob(testTemplate(101)); err != nil {
		t.Fatalf("RetargetJob: %v", err)
	}

	select {
	case push := <-s.Outbound():
		if push.Blob != "aabbccdd" {
			t.Errorf("pushed blob = %q, want %q", push.Blob, "aabbccdd")
		}
	case <-time.After(time.Second):
		t.Fatal("expected a job push on the outbound channel")
	}
}

func TestMarkDisconnectedFromAnyState(t *testing.T) {
	s := New("4Atest...", "127.0.0.1:1234", testConfig())
	s.MarkDisconnected()
	if s.State() != StateDisconnected {
		t.Fatalf("state = %v, want Disconnected", s.State())
	}
	if s.AcceptsWork() {
		t.Error("a disconnected session should not accept work")
	}
}

func TestRecordShareVardiffDrift(t *testing.T) {
	s := New("4Atest...", "127.0.0.1:1234", testConfig())
	s.MarkLoggedIn()

	s.sessionStart = time.Now().Add(-600 * time.Second)
	atomicSetShares(s, 11999)

	if changed := s.RecordShare(1); !changed {
		t.Fatal("expected vardiff drift to trigger a difficulty adjustment")
	}
	if s.Difficulty() <= 1000 {
		t.Errorf("expected upward difficulty adjustment, got %d", s.Difficulty())
	}
}

func atomicSetShares(s *MinerSession, n uint64) {
	s.sessionShares = n
}
