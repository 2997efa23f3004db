package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tracklane/trackd/internal/domain/kit"
)

func TestUpdateBuilderOnlySuppliedFields(t *testing.T) {
	b := newUpdateBuilder("id-arg", "tenant-arg")
	setOpt(b, "comment", kit.Some("left at door"))
	setOpt(b, "number", kit.None[string]())
	setOpt(b, "cost", kit.Some(12.5))

	if b.empty() {
		t.Fatal("expected fragments")
	}
	want := "comment = $3, cost = $4"
	if got := b.clause(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if len(b.args) != 4 {
		t.Fatalf("expected 4 args, got %d", len(b.args))
	}
	if b.args[2] != "left at door" || b.args[3] != 12.5 {
		t.Fatalf("unexpected args: %v", b.args)
	}
}

func TestUpdateBuilderEmpty(t *testing.T) {
	b := newUpdateBuilder(uuid.New())
	setOpt(b, "name", kit.None[string]())
	if !b.empty() {
		t.Fatal("expected empty builder when nothing supplied")
	}
}

func TestUpdateBuilderRawFragment(t *testing.T) {
	b := newUpdateBuilder("id")
	b.set("state_id", uuid.New())
	b.setRaw("state_changed_at = now()")
	want := "state_id = $2, state_changed_at = now()"
	if got := b.clause(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestSetOptUUIDNilClearsColumn(t *testing.T) {
	b := newUpdateBuilder()
	setOptUUID(b, "performer_id", kit.Some(uuid.Nil))
	if b.clause() != "performer_id = $1" {
		t.Fatalf("unexpected clause %q", b.clause())
	}
	if b.args[0] != nil {
		t.Fatalf("expected NULL arg, got %v", b.args[0])
	}

	id := uuid.New()
	setOptUUID(b, "client_id", kit.Some(id))
	if b.args[1] != id {
		t.Fatalf("expected uuid arg, got %v", b.args[1])
	}
}

func TestSetOptTimeZeroClearsColumn(t *testing.T) {
	b := newUpdateBuilder()
	setOptTime(b, "delivery_actual", kit.Some(time.Time{}))
	if b.args[0] != nil {
		t.Fatalf("expected NULL arg, got %v", b.args[0])
	}
	setOptTime(b, "receipt", kit.None[time.Time]())
	if len(b.sets) != 1 {
		t.Fatalf("absent time must not emit a fragment: %v", b.sets)
	}
}
