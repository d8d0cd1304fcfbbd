package journal

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halolight/ambiplay/internal/testutil"
)

func TestAttachAdminRoutes(t *testing.T) {
	db := openTestDB(t)
	s := testSession()
	require.NoError(t, db.StartSession(s))

	mux := http.NewServeMux()
	db.AttachAdminRoutes(mux)

	t.Run("tailsql", func(t *testing.T) {
		w := testutil.Get(t, mux, "/debug/tailsql/")

		// Registered routes may still 403 outside a debug context; only
		// 404 means the route is missing.
		assert.NotEqual(t, http.StatusNotFound, w.Code)
	})

	t.Run("journal-stats", func(t *testing.T) {
		w := testutil.Get(t, mux, "/debug/journal-stats")

		assert.NotEqual(t, http.StatusNotFound, w.Code)

		if w.Code == http.StatusOK {
			var stats DatabaseStats
			require.NoError(t, json.NewDecoder(w.Body).Decode(&stats))
			require.Len(t, stats.Tables, 3)

			byName := map[string]int64{}
			for _, tbl := range stats.Tables {
				byName[tbl.Name] = tbl.RowCount
			}
			assert.Equal(t, int64(1), byName["sessions"])
		}
	})

	t.Run("backup", func(t *testing.T) {
		w := testutil.Get(t, mux, "/debug/backup")

		assert.NotEqual(t, http.StatusNotFound, w.Code)

		if w.Code == http.StatusOK {
			assert.NotEmpty(t, w.Header().Get("Content-Disposition"))
			assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
		}
	})
}
