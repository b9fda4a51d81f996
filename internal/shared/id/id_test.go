package id

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	if id1.String() == id2.String() {
		t.Error("Generated IDs should be unique")
	}
}

func TestGenerateWithPrefix(t *testing.T) {
	gen := NewGenerator()

	for _, prefix := range []string{TransferPrefix, RequestPrefix} {
		id := gen.GenerateWithPrefix(prefix)

		if !strings.HasPrefix(id, prefix+"_") {
			t.Errorf("ID should start with '%s_', got: %s", prefix, id)
		}

		parts := strings.Split(id, "_")
		if len(parts) != 2 || len(parts[1]) != 26 {
			t.Errorf("Prefixed ID should have format 'prefix_ulid', got: %s", id)
		}
	}
}

func TestDeterministicEntropy(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42}, 64)
	a := NewGeneratorWithEntropy(bytes.NewReader(seed)).Generate()
	b := NewGeneratorWithEntropy(bytes.NewReader(seed)).Generate()

	if !bytes.Equal(a.Entropy(), b.Entropy()) {
		t.Error("same entropy source should yield the same random component")
	}
}

func TestNewImportID(t *testing.T) {
	a := NewImportID()
	b := NewImportID()

	if a == b {
		t.Error("import IDs should be unique")
	}
	if !IsImportID(a.String()) {
		t.Errorf("expected valid import ID, got %q", a)
	}
}

func TestIsImportID(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"6ba7b810-9dad-11d1-80b4-00c04fd430c8", true},
		{"", false},
		{"../etc", false},
		{"{6ba7b810-9dad-11d1-80b4-00c04fd430c8}", false},
		{"urn:uuid:6ba7b810-9dad-11d1-80b4-00c04fd430c8", false},
	}

	for _, tt := range tests {
		if got := IsImportID(tt.in); got != tt.want {
			t.Errorf("IsImportID(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTransferID(t *testing.T) {
	tid := NewTransferID()

	if !strings.HasPrefix(tid.String(), "xfer_") {
		t.Errorf("TransferID should start with 'xfer_', got: %s", tid)
	}
	if !IsTransferID(tid.String()) {
		t.Errorf("expected %s to be recognised", tid)
	}
	if IsTransferID("req_" + strings.TrimPrefix(tid.String(), "xfer_")) {
		t.Error("request prefix should not pass as transfer ID")
	}
}

func TestTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	tid := NewTransferID()

	ts, err := Timestamp(tid.String())
	if err != nil {
		t.Fatalf("Timestamp failed: %v", err)
	}
	if ts.Before(before) || ts.After(time.Now().Add(time.Second)) {
		t.Errorf("timestamp %v out of range", ts)
	}

	if _, err := Timestamp("xfer_not-a-ulid"); err == nil {
		t.Error("expected error for invalid ULID")
	}
}

func TestConcurrentGeneration(t *testing.T) {
	const workers = 8
	const perWorker = 100

	var mu sync.Mutex
	seen := make(map[TransferID]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				tid := NewTransferID()
				mu.Lock()
				seen[tid] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Errorf("expected %d unique IDs, got %d", workers*perWorker, len(seen))
	}
}
