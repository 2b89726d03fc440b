package models

import "github.com/google/uuid"

// ensureID assigns a v4 id when the caller left it empty. Ids are generated
// in the application so Postgres and SQLite rows are created the same way.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
