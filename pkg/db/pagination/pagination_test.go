package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type row struct {
	ID        string
	CreatedAt time.Time
}

func TestNormalize(t *testing.T) {
	require.Equal(t, DefaultLimit, Pagination{}.Normalize().Limit)
	require.Equal(t, MaxLimit, Pagination{Limit: 1000}.Normalize().Limit)
	require.Equal(t, 7, Pagination{Limit: 7}.Normalize().Limit)
}

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 123, time.UTC)
	enc, err := EncodeCursor(NewCursor(at, "42"))
	require.NoError(t, err)

	dec, err := DecodeCursor(enc)
	require.NoError(t, err)
	require.Equal(t, "42", dec.ID)

	got, err := dec.Time()
	require.NoError(t, err)
	require.True(t, at.Equal(got))

	_, err = DecodeCursor("%%%")
	require.Error(t, err)
}

func TestPage(t *testing.T) {
	base := time.Now()
	rows := []*row{{ID: "3", CreatedAt: base}, {ID: "2", CreatedAt: base}, {ID: "1", CreatedAt: base}}
	cursorOf := func(r *row) Cursor { return NewCursor(r.CreatedAt, r.ID) }

	page, info := Page(rows, 2, cursorOf)
	require.Len(t, page, 2)
	require.True(t, info.HasMore)

	c, err := DecodeCursor(info.NextCursor)
	require.NoError(t, err)
	require.Equal(t, "2", c.ID)

	page, info = Page(rows, 3, cursorOf)
	require.Len(t, page, 3)
	require.False(t, info.HasMore)
	require.Empty(t, info.NextCursor)
}
