package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 5, 1, 8, 30, 0, 123, time.UTC), ID: uuid.New()}
	out, err := ParseCursor(EncodeCursor(in))
	if err != nil {
		t.Fatalf("parse cursor: %v", err)
	}
	if !out.CreatedAt.Equal(in.CreatedAt) || out.ID != in.ID {
		t.Fatalf("cursor mismatch: %+v vs %+v", out, in)
	}

	if c, err := ParseCursor("  "); err != nil || c != nil {
		t.Fatalf("blank cursor should be nil, got %+v %v", c, err)
	}
	if _, err := ParseCursor("not-base64!"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestNormalizeLimit(t *testing.T) {
	cases := map[int]int{0: DefaultLimit, -3: DefaultLimit, 5: 5, MaxLimit + 1: MaxLimit}
	for in, want := range cases {
		if got := NormalizeLimit(in); got != want {
			t.Fatalf("NormalizeLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestNextPage(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	type row struct {
		id uuid.UUID
		at time.Time
	}
	rows := []row{{uuid.New(), base.Add(3)}, {uuid.New(), base.Add(2)}, {uuid.New(), base.Add(1)}}
	cursorOf := func(r row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }

	page, next := NextPage(rows, 2, cursorOf)
	if len(page) != 2 || next == "" {
		t.Fatalf("expected a trimmed page with cursor, got %d %q", len(page), next)
	}
	c, err := ParseCursor(next)
	if err != nil || c.ID != rows[1].id {
		t.Fatalf("cursor should point at the last kept row: %+v %v", c, err)
	}

	page, next = NextPage(rows, 5, cursorOf)
	if len(page) != 3 || next != "" {
		t.Fatalf("expected final page, got %d %q", len(page), next)
	}
}
