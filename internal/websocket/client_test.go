// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/batcher"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/deck"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
)

// fakeLog satisfies the deck engine's durable log without storage.
type fakeLog struct {
	seq atomic.Uint64
}

func (l *fakeLog) AppendDecision(ctx context.Context, d models.Decision) (uint64, error) {
	return l.seq.Add(1), nil
}

func (l *fakeLog) SealBatch(ctx context.Context, sb batcher.SealedBatch) error {
	return nil
}

// fakeSource deals a fixed page of items.
type fakeSource struct {
	items []models.ContentItem
}

func (s *fakeSource) FetchBatch(ctx context.Context, userID string, count int) ([]models.ContentItem, error) {
	return s.items, nil
}

func (s *fakeSource) RequestGeneration(ctx context.Context, req models.GenerationRequest) (string, error) {
	return "job-1", nil
}

func wsTestItems(n int) []models.ContentItem {
	items := make([]models.ContentItem, n)
	for i := range items {
		items[i] = models.ContentItem{
			ID:        fmt.Sprintf("item-%d", i),
			MediaURL:  fmt.Sprintf("https://cdn.example.com/item-%d.jpg", i),
			Tier:      models.TierGeneric,
			CreatedAt: time.Now().UTC(),
		}
	}
	return items
}

// dialTestSession stands up a hub, a manager-backed session, and a
// connected websocket client.
func dialTestSession(t *testing.T) *websocket.Conn {
	t.Helper()

	hub := startTestHub(t)

	cfg := deck.DefaultConfig()
	cfg.Lookahead = 5
	cfg.Batch = batcher.Config{Size: 100, FlushInterval: time.Hour}
	mgr := deck.NewManager(cfg, deck.Deps{Outbox: &fakeLog{}, Haptics: hub}, &fakeSource{items: wsTestItems(10)}, nil)

	session, _, err := mgr.Create(context.Background(), "user-1", 400)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { _ = session.Close(context.Background()) })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := NewUpgrader(nil).Upgrade(hub, session, w, r); err != nil {
			t.Errorf("Upgrade: %v", err)
		}
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, frameType string, data interface{}) {
	t.Helper()
	if err := conn.WriteJSON(Frame{Type: frameType, Data: data}); err != nil {
		t.Fatalf("WriteJSON(%s): %v", frameType, err)
	}
}

// readFrameOfType skips unrelated frames (haptic pulses arrive
// interleaved with gesture responses).
func readFrameOfType(t *testing.T, conn *websocket.Conn, want string) rawFrame {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	for {
		var raw rawFrame
		if err := conn.ReadJSON(&raw); err != nil {
			t.Fatalf("ReadJSON waiting for %s: %v", want, err)
		}
		if raw.Type == want {
			return raw
		}
		if time.Now().After(deadline) {
			t.Fatalf("never received frame %s", want)
		}
	}
}

func TestClientGestureRoundTrip(t *testing.T) {
	conn := dialTestSession(t)
	now := time.Now()

	sendFrame(t, conn, FrameGestureBegin, models.GestureStart{At: now})
	sendFrame(t, conn, FrameGestureMove, models.GestureMove{DX: 60, VX: 200, At: now})

	raw := readFrameOfType(t, conn, FrameTransformUpdate)
	var transform models.Transform
	if err := json.Unmarshal(raw.Data, &transform); err != nil {
		t.Fatalf("decode transform: %v", err)
	}
	if transform.TranslateX != 60 {
		t.Errorf("TranslateX = %v, want 60", transform.TranslateX)
	}

	sendFrame(t, conn, FrameGestureRelease, models.GestureRelease{DX: 300, VX: 900, At: now})

	raw = readFrameOfType(t, conn, FrameDecisionResult)
	var result DecisionResult
	if err := json.Unmarshal(raw.Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Committed {
		t.Fatal("release past threshold should commit")
	}
	if result.Decision == nil || result.Decision.Direction != models.DirectionAccept {
		t.Errorf("decision = %+v, want accept", result.Decision)
	}
	if result.Deck.CurrentIndex != 1 {
		t.Errorf("CurrentIndex = %d, want 1 after commit", result.Deck.CurrentIndex)
	}
}

func TestClientSnapBackRoundTrip(t *testing.T) {
	conn := dialTestSession(t)
	now := time.Now()

	sendFrame(t, conn, FrameGestureBegin, models.GestureStart{At: now})
	sendFrame(t, conn, FrameGestureRelease, models.GestureRelease{DX: 20, VX: 50, At: now})

	raw := readFrameOfType(t, conn, FrameDecisionResult)
	var result DecisionResult
	if err := json.Unmarshal(raw.Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Committed {
		t.Fatal("short drag must snap back, not commit")
	}
	if result.Deck.CurrentIndex != 0 {
		t.Errorf("CurrentIndex = %d, want 0 after snap-back", result.Deck.CurrentIndex)
	}
}

func TestClientDeckRequest(t *testing.T) {
	conn := dialTestSession(t)

	sendFrame(t, conn, FrameDeckRequest, nil)

	raw := readFrameOfType(t, conn, FrameDeckUpdate)
	var snap models.DeckSnapshot
	if err := json.Unmarshal(raw.Data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Remaining != 10 {
		t.Errorf("Remaining = %d, want 10", snap.Remaining)
	}
}

func TestClientRejectsUnknownFrame(t *testing.T) {
	conn := dialTestSession(t)

	sendFrame(t, conn, "bogus.type", nil)

	raw := readFrameOfType(t, conn, FrameError)
	var errFrame ErrorFrame
	if err := json.Unmarshal(raw.Data, &errFrame); err != nil {
		t.Fatalf("decode error frame: %v", err)
	}
	if errFrame.Code != "unknown_frame" {
		t.Errorf("Code = %q, want unknown_frame", errFrame.Code)
	}
}

func TestClientFloodGuardDropsExcessFrames(t *testing.T) {
	conn := dialTestSession(t)

	// Blast well past the per-window budget. The excess frames must be
	// refused instead of reaching the session engine.
	for i := 0; i < maxFramesPerWindow+20; i++ {
		sendFrame(t, conn, FramePing, nil)
	}

	raw := readFrameOfType(t, conn, FrameError)
	var errFrame ErrorFrame
	if err := json.Unmarshal(raw.Data, &errFrame); err != nil {
		t.Fatalf("decode error frame: %v", err)
	}
	if errFrame.Code != "rate_limited" {
		t.Errorf("Code = %q, want rate_limited", errFrame.Code)
	}
}

func TestClientPingPong(t *testing.T) {
	conn := dialTestSession(t)

	sendFrame(t, conn, FramePing, nil)
	readFrameOfType(t, conn, FramePong)
}

func TestClientReceivesHapticPulses(t *testing.T) {
	conn := dialTestSession(t)
	now := time.Now()

	sendFrame(t, conn, FrameGestureBegin, models.GestureStart{At: now})

	raw := readFrameOfType(t, conn, FrameHapticPulse)
	var pulse HapticPulse
	if err := json.Unmarshal(raw.Data, &pulse); err != nil {
		t.Fatalf("decode pulse: %v", err)
	}
	if pulse.Kind != "start" {
		t.Errorf("Kind = %q, want start", pulse.Kind)
	}
}
