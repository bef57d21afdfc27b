// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// inClause expands a query containing a single %s into an IN clause with
// one placeholder per id.
func inClause(queryFmt string, ids []string) (string, []interface{}) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return fmt.Sprintf(queryFmt, placeholders), args
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
