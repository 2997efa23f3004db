package postgres

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tracklane/trackd/internal/domain/kit"
)

// updateBuilder assembles the SET clause of a partial update. Only
// fields the caller actually supplied produce a fragment; an empty
// builder tells the store to degrade to a plain fetch.
type updateBuilder struct {
	sets []string
	args []any
}

// newUpdateBuilder seeds the argument list, typically with the id and
// tenant used by the WHERE clause, so SET placeholders continue after
// them.
func newUpdateBuilder(seed ...any) *updateBuilder {
	return &updateBuilder{args: seed}
}

// set appends "col = $n" with the given value.
func (b *updateBuilder) set(col string, val any) {
	b.args = append(b.args, val)
	b.sets = append(b.sets, fmt.Sprintf("%s = $%d", col, len(b.args)))
}

// setRaw appends a literal fragment with no bound value, for
// server-side expressions such as now().
func (b *updateBuilder) setRaw(fragment string) {
	b.sets = append(b.sets, fragment)
}

// empty reports whether no fragment was produced.
func (b *updateBuilder) empty() bool {
	return len(b.sets) == 0
}

// clause returns the joined SET fragments.
func (b *updateBuilder) clause() string {
	return strings.Join(b.sets, ", ")
}

// setOpt emits a fragment only when the optional value was supplied.
func setOpt[T any](b *updateBuilder, col string, o kit.Opt[T]) {
	if o.Valid {
		b.set(col, o.Value)
	}
}

// setOptUUID treats a supplied nil uuid as SQL NULL, clearing the
// column rather than writing the zero uuid.
func setOptUUID(b *updateBuilder, col string, o kit.Opt[uuid.UUID]) {
	if !o.Valid {
		return
	}
	if o.Value == uuid.Nil {
		b.set(col, nil)
		return
	}
	b.set(col, o.Value)
}

// setOptTime treats a supplied zero time as SQL NULL.
func setOptTime(b *updateBuilder, col string, o kit.Opt[time.Time]) {
	if !o.Valid {
		return
	}
	if o.Value.IsZero() {
		b.set(col, nil)
		return
	}
	b.set(col, o.Value)
}
