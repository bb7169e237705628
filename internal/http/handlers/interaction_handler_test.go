package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tbourn/today-feed-cache/internal/domain"
	"github.com/tbourn/today-feed-cache/internal/services"
)

func TestPostInteraction_QueuesAndDrains(t *testing.T) {
	s := newStack(t)

	w := s.do(t, http.MethodPost, "/interactions", map[string]any{
		"action":  "content_viewed",
		"payload": map[string]any{"content_id": "c1"},
	})
	wantStatus(t, w, http.StatusAccepted)
	created := decode[InteractionResponse](t, w)
	if created.QueueID == "" || !created.Queued {
		t.Fatalf("unexpected response: %+v", created)
	}

	w = s.do(t, http.MethodGet, "/sync/status", nil)
	wantStatus(t, w, http.StatusOK)
	st := decode[SyncStatusResponse](t, w)
	if st.QueueLength != 1 || len(st.Pending) != 1 || st.Pending[0].QueueID != created.QueueID {
		t.Fatalf("status=%+v", st)
	}
	if st.Pending[0].Action != "content_viewed" || string(st.Pending[0].Payload) != `{"content_id":"c1"}` {
		t.Fatalf("pending item=%+v", st.Pending[0])
	}

	w = s.do(t, http.MethodPost, "/sync/drain", nil)
	wantStatus(t, w, http.StatusOK)
	if diff := cmp.Diff(services.DrainResult{Synced: 1}, decode[services.DrainResult](t, w)); diff != "" {
		t.Fatalf("drain result (-want +got):\n%s", diff)
	}
	if s.sim.Synced() != 1 {
		t.Fatalf("remote received %d items, want 1", s.sim.Synced())
	}

	st = decode[SyncStatusResponse](t, s.do(t, http.MethodGet, "/sync/status", nil))
	if st.QueueLength != 0 || len(st.Pending) != 0 || st.LastSuccess == nil {
		t.Fatalf("status after drain=%+v", st)
	}
}

func TestPostInteraction_BadRequests(t *testing.T) {
	s := newStack(t)
	cases := []struct {
		name string
		body any
	}{
		{"malformed", "{"},
		{"missing action", map[string]any{"payload": map[string]any{}}},
		{"blank action", map[string]any{"action": "   "}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/interactions", tc.body)
			wantStatus(t, w, http.StatusBadRequest)
			wantCode(t, w, ErrCodeBadRequest)
		})
	}
}

func TestDrainSync_EmptyQueue(t *testing.T) {
	s := newStack(t)
	w := s.do(t, http.MethodPost, "/sync/drain", nil)
	wantStatus(t, w, http.StatusOK)
	if res := decode[services.DrainResult](t, w); !res.Empty {
		t.Fatalf("expected empty drain, got %+v", res)
	}
}

func TestConnectivity_OnlineDrainsAndWarms(t *testing.T) {
	s := newStack(t)
	wantStatus(t, s.do(t, http.MethodPost, "/interactions", map[string]any{"action": "tapped"}), http.StatusAccepted)

	w := s.do(t, http.MethodPost, "/connectivity", map[string]any{"online": true})
	wantStatus(t, w, http.StatusOK)
	if st := decode[services.LifecycleState](t, w); !st.Online || !st.Initialized {
		t.Fatalf("lifecycle state=%+v", st)
	}
	if s.sim.Synced() != 1 {
		t.Fatalf("reconnect should drain the queue, synced=%d", s.sim.Synced())
	}

	w = s.do(t, http.MethodGet, "/content/today", nil)
	wantStatus(t, w, http.StatusOK)
	if resp := decode[TodayResponse](t, w); resp.Content.ID != "sim-2024-12-28" || !resp.Content.IsFromNetwork {
		t.Fatalf("connectivity warming did not cache today: %+v", resp.Content)
	}

	stats, err := s.l.Warming.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Successes != 1 || stats.LastTrigger != domain.TriggerConnectivity {
		t.Fatalf("warming stats=%+v", stats)
	}
}

func TestConnectivity_BadBody(t *testing.T) {
	s := newStack(t)
	for _, body := range []any{"{}", map[string]any{"online": "yes"}} {
		w := s.do(t, http.MethodPost, "/connectivity", body)
		wantStatus(t, w, http.StatusBadRequest)
	}
}
