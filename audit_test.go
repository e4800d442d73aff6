package pgmodel

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

var (
	_ Creator[testUser] = AuditedCreate[testUser]{}
	_ Updater[testUser] = AuditedUpdate[testUser]{}
	_ Deleter[testUser] = AuditedDelete[testUser]{}
)

func recordingHandler(entries *[]*AuditEntry) AuditHandler {
	return func(ctx context.Context, entry *AuditEntry) error {
		*entries = append(*entries, entry)
		return nil
	}
}

func TestWithActor(t *testing.T) {
	if actor := ActorFromContext(context.Background()); actor != "" {
		t.Errorf("Expected empty actor, got %q", actor)
	}
	ctx := WithActor(context.Background(), "svc-billing")
	if actor := ActorFromContext(ctx); actor != "svc-billing" {
		t.Errorf("Expected svc-billing, got %q", actor)
	}
}

func TestAuditModel_Create(t *testing.T) {
	user := testUser{RecordData: RecordData{ID: testUserID}, Email: "niamh@example.com", Name: "Niamh", Age: 30}
	fake := &fakeExecutor{results: [][]Row{{userRow(user)}}}
	model, err := NewModel[testUser](fake, "users", nil)
	if err != nil {
		t.Fatalf("NewModel failed: %v", err)
	}

	var entries []*AuditEntry
	AuditModel(model, recordingHandler(&entries))
	ctx := WithActor(context.Background(), "svc-test")

	created, err := model.Create.One(ctx, user)
	if err != nil {
		t.Fatalf("Create.One failed: %v", err)
	}
	if created != user {
		t.Errorf("Expected %+v, got %+v", user, created)
	}

	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Action != AuditActionCreate {
		t.Errorf("Expected CREATE, got %s", e.Action)
	}
	if e.Table != "users" {
		t.Errorf("Expected table users, got %s", e.Table)
	}
	if e.RecordID != testUserID {
		t.Errorf("Expected record id %s, got %s", testUserID, e.RecordID)
	}
	if e.Actor != "svc-test" {
		t.Errorf("Expected actor svc-test, got %q", e.Actor)
	}
	if e.At.IsZero() {
		t.Error("Expected a timestamp on the entry")
	}
	if e.OldData != nil {
		t.Errorf("Expected no old data on create, got %s", e.OldData)
	}

	var stored testUser
	if err := json.Unmarshal(e.NewData, &stored); err != nil {
		t.Fatalf("Unmarshal new data failed: %v", err)
	}
	if stored != user {
		t.Errorf("Expected new data %+v, got %+v", user, stored)
	}
}

func TestAuditModel_UpdateRecordsOldData(t *testing.T) {
	old := testUser{RecordData: RecordData{ID: testUserID}, Email: "old@example.com", Name: "Old", Age: 1}
	updated := old
	updated.Email = "new@example.com"

	fake := &fakeExecutor{results: [][]Row{
		{userRow(old)},
		{userRow(updated)},
	}}
	model, err := NewModel[testUser](fake, "users", nil)
	if err != nil {
		t.Fatalf("NewModel failed: %v", err)
	}

	var entries []*AuditEntry
	AuditModel(model, recordingHandler(&entries))

	got, err := model.Update.OneByID(context.Background(), testUserID, NewChangeSet().Set("email", "new@example.com"))
	if err != nil {
		t.Fatalf("Update.OneByID failed: %v", err)
	}
	if got != updated {
		t.Errorf("Expected %+v, got %+v", updated, got)
	}

	if len(fake.queries) != 2 {
		t.Fatalf("Expected pre-update read plus update, got %v", fake.queries)
	}
	if !strings.HasPrefix(fake.queries[0], "SELECT * FROM") {
		t.Errorf("Expected the read first, got %q", fake.queries[0])
	}
	if !strings.HasPrefix(fake.queries[1], "UPDATE") {
		t.Errorf("Expected the update second, got %q", fake.queries[1])
	}

	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Action != AuditActionUpdate {
		t.Errorf("Expected UPDATE, got %s", e.Action)
	}

	var before, after testUser
	if err := json.Unmarshal(e.OldData, &before); err != nil {
		t.Fatalf("Unmarshal old data failed: %v", err)
	}
	if err := json.Unmarshal(e.NewData, &after); err != nil {
		t.Fatalf("Unmarshal new data failed: %v", err)
	}
	if before != old {
		t.Errorf("Expected old data %+v, got %+v", old, before)
	}
	if after != updated {
		t.Errorf("Expected new data %+v, got %+v", updated, after)
	}
}

func TestAuditModel_DeleteRecordsOldData(t *testing.T) {
	user := testUser{RecordData: RecordData{ID: testUserID}, Email: "gone@example.com", Name: "Gone", Age: 9}
	fake := &fakeExecutor{results: [][]Row{{userRow(user)}}}
	model, err := NewModel[testUser](fake, "users", nil)
	if err != nil {
		t.Fatalf("NewModel failed: %v", err)
	}

	var entries []*AuditEntry
	AuditModel(model, recordingHandler(&entries))

	deleted, err := model.Delete.OneByID(context.Background(), testUserID)
	if err != nil {
		t.Fatalf("Delete.OneByID failed: %v", err)
	}
	if deleted != user {
		t.Errorf("Expected %+v, got %+v", user, deleted)
	}

	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Action != AuditActionDelete {
		t.Errorf("Expected DELETE, got %s", e.Action)
	}
	if e.NewData != nil {
		t.Errorf("Expected no new data on delete, got %s", e.NewData)
	}

	var before testUser
	if err := json.Unmarshal(e.OldData, &before); err != nil {
		t.Fatalf("Unmarshal old data failed: %v", err)
	}
	if before != user {
		t.Errorf("Expected old data %+v, got %+v", user, before)
	}
}

func TestAuditModel_HandlerErrorPropagates(t *testing.T) {
	user := testUser{RecordData: RecordData{ID: testUserID}, Email: "a@example.com", Name: "A", Age: 1}
	fake := &fakeExecutor{results: [][]Row{{userRow(user)}}}
	model, err := NewModel[testUser](fake, "users", nil)
	if err != nil {
		t.Fatalf("NewModel failed: %v", err)
	}

	boom := errors.New("trail unavailable")
	AuditModel(model, func(ctx context.Context, entry *AuditEntry) error {
		return boom
	})

	created, err := model.Create.One(context.Background(), user)
	if !errors.Is(err, boom) {
		t.Fatalf("Expected the handler error, got %v", err)
	}
	// the insert already happened, so the stored record still comes back
	if created != user {
		t.Errorf("Expected the stored record despite the handler error, got %+v", created)
	}
}

func TestAuditModel_MutationFailureSkipsHandler(t *testing.T) {
	fake := &fakeExecutor{errs: []error{errors.New("boom")}}
	model, err := NewModel[testUser](fake, "users", nil)
	if err != nil {
		t.Fatalf("NewModel failed: %v", err)
	}

	calls := 0
	AuditModel(model, func(ctx context.Context, entry *AuditEntry) error {
		calls++
		return nil
	})

	if _, err := model.Create.One(context.Background(), testUser{RecordData: RecordData{ID: testUserID}}); err == nil {
		t.Fatal("Expected the mutation error")
	}
	if calls != 0 {
		t.Errorf("Expected the handler to stay silent on failure, got %d calls", calls)
	}
}

func TestNewTableAuditHandler(t *testing.T) {
	logRow := NewRow().
		Set("id", testUserID2.String()).
		Set("action", "DELETE").
		Set("table_name", "users").
		Set("record_id", testUserID.String()).
		Set("old_data", `{"a":1}`).
		Set("actor", "svc-test").
		Set("at", "2024-03-01T12:00:00Z")
	fake := &fakeExecutor{results: [][]Row{{logRow}}}
	trail, err := NewModel[AuditRecord](fake, "audit_log", nil)
	if err != nil {
		t.Fatalf("NewModel failed: %v", err)
	}

	handler := NewTableAuditHandler(trail.Create)
	entry := &AuditEntry{
		Action:   AuditActionDelete,
		Table:    "users",
		RecordID: testUserID,
		OldData:  json.RawMessage(`{"a":1}`),
		Actor:    "svc-test",
		At:       time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := handler(context.Background(), entry); err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	if len(fake.queries) != 1 {
		t.Fatalf("Expected 1 query, got %d", len(fake.queries))
	}
	got := fake.queries[0]
	prefix := `INSERT INTO "audit_log" ("id","action","table_name","record_id","old_data","new_data","actor","metadata","at") VALUES (`
	if !strings.HasPrefix(got, prefix) {
		t.Errorf("Expected prefix %q, got %q", prefix, got)
	}
	for _, fragment := range []string{"'DELETE'", "'users'", testUserID.String(), `'{"a":1}'`, "'svc-test'", "NULL"} {
		if !strings.Contains(got, fragment) {
			t.Errorf("Expected query to contain %s, got %q", fragment, got)
		}
	}
}
