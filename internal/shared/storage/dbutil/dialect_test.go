package dbutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRebindToQuestion(t *testing.T) {
	assert.Equal(t, "SELECT * FROM t WHERE id = ? AND name = ?",
		RebindToQuestion("SELECT * FROM t WHERE id = $1 AND name = $2"))
	assert.Equal(t, "UPDATE t SET status = $1 WHERE id = $2",
		StripPgCasts("UPDATE t SET status = $1::varchar WHERE id = $2"))
}

func TestWhere(t *testing.T) {
	var w Where
	assert.True(t, w.Empty())
	assert.Equal(t, "", w.SQL())

	w.Add("year_id = ?", "sy-1")
	w.Add("status = ?", "approved")
	w.Add("(user_id = ? OR user_id = ?)", "u-1", "all")
	limit := w.Next(10)

	assert.Equal(t, " WHERE year_id = $1 AND status = $2 AND (user_id = $3 OR user_id = $4)", w.SQL())
	assert.Equal(t, "$5", limit)
	assert.Equal(t, []any{"sy-1", "approved", "u-1", "all", 10}, w.Args())
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\% \_done\\`, EscapeLike(`100% _done\`))
}
