package storage

import (
	"context"
	"path/filepath"
	"testing"

	"fedbot/pkg/logx"
)

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	out := map[string]Store{}
	for _, driver := range []string{"sqlite", "file"} {
		st, err := Open(Config{Driver: driver, Path: filepath.Join(dir, driver+".db")}, logx.Nop())
		if err != nil {
			t.Fatalf("open %s: %v", driver, err)
		}
		t.Cleanup(func() { _ = st.Close() })
		out[driver] = st
	}
	return out
}

func TestFederationRoundTrip(t *testing.T) {
	ctx := context.Background()
	for driver, st := range openDrivers(t) {
		t.Run(driver, func(t *testing.T) {
			if err := st.UpsertFederation(ctx, Federation{ID: 100, Name: "Fed A", Kind: "supergroup"}); err != nil {
				t.Fatalf("upsert: %v", err)
			}
			if err := st.UpsertFederation(ctx, Federation{ID: 200, Name: "Fed B", Kind: "supergroup"}); err != nil {
				t.Fatalf("upsert: %v", err)
			}
			// Re-registering must overwrite in place, not move to the end.
			if err := st.UpsertFederation(ctx, Federation{ID: 100, Name: "Fed A2", Kind: "group"}); err != nil {
				t.Fatalf("re-upsert: %v", err)
			}

			feds, err := st.ListFederations(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(feds) != 2 {
				t.Fatalf("expected 2 federations, got %d", len(feds))
			}
			if feds[0].ID != 100 || feds[0].Name != "Fed A2" {
				t.Fatalf("unexpected first record: %+v", feds[0])
			}
			if feds[1].ID != 200 {
				t.Fatalf("unexpected order: %+v", feds)
			}

			ok, err := st.DeleteFederation(ctx, 200)
			if err != nil || !ok {
				t.Fatalf("delete existing: ok=%v err=%v", ok, err)
			}
			ok, err = st.DeleteFederation(ctx, 999)
			if err != nil || ok {
				t.Fatalf("delete missing: ok=%v err=%v", ok, err)
			}

			if err := st.DeleteAllFederations(ctx); err != nil {
				t.Fatalf("clear: %v", err)
			}
			feds, err = st.ListFederations(ctx)
			if err != nil {
				t.Fatalf("list after clear: %v", err)
			}
			if len(feds) != 0 {
				t.Fatalf("expected empty registry, got %d", len(feds))
			}
		})
	}
}

func TestApproverAllowList(t *testing.T) {
	ctx := context.Background()
	for driver, st := range openDrivers(t) {
		t.Run(driver, func(t *testing.T) {
			if err := st.UpsertApprover(ctx, Approver{ID: 7, Name: "mod"}); err != nil {
				t.Fatalf("upsert: %v", err)
			}
			ok, err := st.IsApprover(ctx, 7)
			if err != nil || !ok {
				t.Fatalf("IsApprover(7): ok=%v err=%v", ok, err)
			}
			ok, err = st.IsApprover(ctx, 8)
			if err != nil || ok {
				t.Fatalf("IsApprover(8): ok=%v err=%v", ok, err)
			}

			list, err := st.ListApprovers(ctx)
			if err != nil || len(list) != 1 || list[0].ID != 7 {
				t.Fatalf("list: %v %+v", err, list)
			}

			ok, err = st.DeleteApprover(ctx, 7)
			if err != nil || !ok {
				t.Fatalf("delete: ok=%v err=%v", ok, err)
			}
			ok, _ = st.IsApprover(ctx, 7)
			if ok {
				t.Fatal("approver still present after delete")
			}
		})
	}
}
