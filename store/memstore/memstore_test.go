package memstore

import (
	"context"
	"errors"
	"testing"

	serrors "github.com/skumyol/npcworld/errors"
	"github.com/skumyol/npcworld/simmodel"
)

func TestCreateGetSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()

	settings := simmodel.GameSettings{World: "riverside"}
	created, err := s.CreateSession(ctx, "s1", settings)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if created.CurrentDay != 1 || created.CurrentPeriod != simmodel.PeriodMorning {
		t.Fatalf("unexpected defaults: day=%d period=%s", created.CurrentDay, created.CurrentPeriod)
	}

	got, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.SessionID != "s1" || got.GameSettings.World != "riverside" {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	// mutating the returned snapshot must not affect the store.
	got.GameSettings.World = "mutated"
	again, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if again.GameSettings.World != "riverside" {
		t.Fatalf("store leaked internal state through snapshot: %+v", again)
	}
}

func TestCreateSessionConflict(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.CreateSession(ctx, "dup", simmodel.GameSettings{}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	_, err := s.CreateSession(ctx, "dup", simmodel.GameSettings{})
	var storageErr *serrors.StorageError
	if !errors.As(err, &storageErr) || storageErr.Kind != serrors.StorageConflict {
		t.Fatalf("expected StorageConflict, got %v", err)
	}
}

func TestAllocateIDStrictlyMonotone(t *testing.T) {
	ctx := context.Background()
	s := New()

	var ids []int64
	for i := 0; i < 5; i++ {
		id, err := s.AllocateID(ctx, "widgets")
		if err != nil {
			t.Fatalf("AllocateID: %v", err)
		}
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] != ids[i-1]+1 {
			t.Fatalf("ids not strictly monotone: %v", ids)
		}
	}
}

func TestDialogueLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.CreateSession(ctx, "sess", simmodel.GameSettings{}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := s.CreateDay(ctx, "sess", 1, simmodel.PeriodMorning, []string{"alice", "bob"}, nil); err != nil {
		t.Fatalf("CreateDay: %v", err)
	}

	dlg, err := s.CreateDialogue(ctx, "sess", "alice", "bob", 1, simmodel.PeriodMorning, "market")
	if err != nil {
		t.Fatalf("CreateDialogue: %v", err)
	}

	msg, err := s.AppendMessage(ctx, dlg.DialogueID, "alice", "bob", "hello there")
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if msg.MessageID < 0 {
		t.Fatalf("unexpected message id: %d", msg.MessageID)
	}

	if _, err := s.EndDialogue(ctx, dlg.DialogueID, "they exchanged pleasantries"); err != nil {
		t.Fatalf("EndDialogue: %v", err)
	}

	// appending after end must fail and must not mutate state.
	if _, err := s.AppendMessage(ctx, dlg.DialogueID, "alice", "bob", "one more thing"); err == nil {
		t.Fatal("expected AppendMessage after EndDialogue to fail")
	}

	// re-ending an already-ended dialogue must fail with DialogueStateError
	// and must not mutate the stored summary.
	_, err = s.EndDialogue(ctx, dlg.DialogueID, "a different summary")
	var stateErr *serrors.DialogueStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected DialogueStateError, got %v", err)
	}

	final, err := s.GetDialogue(ctx, dlg.DialogueID)
	if err != nil {
		t.Fatalf("GetDialogue: %v", err)
	}
	if final.Summary != "they exchanged pleasantries" {
		t.Fatalf("summary was mutated by failed re-end: %q", final.Summary)
	}

	msgs, err := s.GetMessages(ctx, dlg.DialogueID)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].MessageText != "hello there" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
}

func TestUpdateSessionFnReadModifyWrite(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.CreateSession(ctx, "sess", simmodel.GameSettings{}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	updated, err := s.UpdateSessionFn(ctx, "sess", func(sess *simmodel.Session) error {
		sess.CurrentDay = 2
		sess.CurrentPeriod = simmodel.PeriodNoon
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateSessionFn: %v", err)
	}
	if updated.CurrentDay != 2 || updated.CurrentPeriod != simmodel.PeriodNoon {
		t.Fatalf("mutation not applied: %+v", updated)
	}

	got, err := s.GetSession(ctx, "sess")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.CurrentDay != 2 {
		t.Fatalf("mutation not persisted: %+v", got)
	}
}

func TestDeleteSessionDataLeavesNoOrphans(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.CreateSession(ctx, "sess", simmodel.GameSettings{}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := s.CreateDay(ctx, "sess", 1, simmodel.PeriodMorning, nil, nil); err != nil {
		t.Fatalf("CreateDay: %v", err)
	}
	dlg, err := s.CreateDialogue(ctx, "sess", "alice", "bob", 1, simmodel.PeriodMorning, "market")
	if err != nil {
		t.Fatalf("CreateDialogue: %v", err)
	}
	if _, err := s.AppendMessage(ctx, dlg.DialogueID, "alice", "bob", "hi"); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	mem := simmodel.NewNPCMemory("alice", "sess", simmodel.CharacterProperties{Name: "alice"})
	if err := s.UpsertNPCMemory(ctx, mem); err != nil {
		t.Fatalf("UpsertNPCMemory: %v", err)
	}

	if err := s.DeleteSessionData(ctx, "sess"); err != nil {
		t.Fatalf("DeleteSessionData: %v", err)
	}

	if _, err := s.GetSession(ctx, "sess"); err == nil {
		t.Fatal("expected session to be gone")
	}
	if _, err := s.GetDay(ctx, "sess", 1); err == nil {
		t.Fatal("expected day to be gone")
	}
	if _, err := s.GetDialogue(ctx, dlg.DialogueID); err == nil {
		t.Fatal("expected dialogue to be gone")
	}
	if _, err := s.GetMessages(ctx, dlg.DialogueID); err == nil {
		t.Fatal("expected messages lookup to fail for deleted dialogue")
	}
	if _, err := s.GetNPCMemory(ctx, "alice", "sess"); err == nil {
		t.Fatal("expected npc memory to be gone")
	}

	// recreating the session afterward must not resurrect any orphaned rows.
	recreated, err := s.CreateSession(ctx, "sess", simmodel.GameSettings{})
	if err != nil {
		t.Fatalf("CreateSession after delete: %v", err)
	}
	if len(recreated.DialogueIDs) != 0 {
		t.Fatalf("recreated session has orphaned dialogue ids: %v", recreated.DialogueIDs)
	}
}
