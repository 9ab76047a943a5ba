package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pagevault/pagevault/internal/capture"
)

// ensureCode returns the code registered for url, allocating the next free
// two-letter code (AA, AB, ... ZZ) inside tx when the url is new.
func ensureCode(ctx context.Context, tx *sql.Tx, url string) (string, error) {
	var code string
	err := tx.QueryRowContext(ctx, `SELECT code FROM url_codes WHERE url = ?`, url).Scan(&code)
	if err == nil {
		return code, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", &capture.LocalWriteError{Err: fmt.Errorf("lookup url code: %w", err)}
	}

	var last sql.NullString
	if err := tx.QueryRowContext(ctx, `SELECT MAX(code) FROM url_codes`).Scan(&last); err != nil {
		return "", &capture.LocalWriteError{Err: fmt.Errorf("scan code registry: %w", err)}
	}
	code = "AA"
	if last.Valid {
		next, ok := successorCode(last.String)
		if !ok {
			return "", &capture.LocalWriteError{Err: fmt.Errorf("url code space exhausted at %s", last.String)}
		}
		code = next
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO url_codes (url, code) VALUES (?, ?)`, url, code); err != nil {
		return "", &capture.LocalWriteError{Err: fmt.Errorf("register url code %s: %w", code, err)}
	}
	return code, nil
}

// successorCode advances a two-letter code in lexicographic order. The
// second letter rolls over into the first; ZZ has no successor.
func successorCode(code string) (string, bool) {
	if len(code) != 2 {
		return "", false
	}
	hi, lo := code[0], code[1]
	if lo < 'Z' {
		return string([]byte{hi, lo + 1}), true
	}
	if hi < 'Z' {
		return string([]byte{hi + 1, 'A'}), true
	}
	return "", false
}

// nextSequence increments and returns the counter for (urlCode, prefix)
// using an update-then-insert so the row is created lazily at 1.
func nextSequence(ctx context.Context, tx *sql.Tx, urlCode string, prefix byte) (int, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE sequential_counters
		SET last_sequence = last_sequence + 1
		WHERE url_code = ? AND prefix_char = ?`, urlCode, string(prefix))
	if err != nil {
		return 0, &capture.LocalWriteError{Err: fmt.Errorf("advance counter (%s, %c): %w", urlCode, prefix, err)}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &capture.LocalWriteError{Err: fmt.Errorf("advance counter (%s, %c): %w", urlCode, prefix, err)}
	}
	if n == 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sequential_counters (url_code, prefix_char, last_sequence)
			VALUES (?, ?, 1)`, urlCode, string(prefix)); err != nil {
			return 0, &capture.LocalWriteError{Err: fmt.Errorf("seed counter (%s, %c): %w", urlCode, prefix, err)}
		}
		return 1, nil
	}
	var seq int
	err = tx.QueryRowContext(ctx, `
		SELECT last_sequence FROM sequential_counters
		WHERE url_code = ? AND prefix_char = ?`, urlCode, string(prefix)).Scan(&seq)
	if err != nil {
		return 0, &capture.LocalWriteError{Err: fmt.Errorf("read counter (%s, %c): %w", urlCode, prefix, err)}
	}
	return seq, nil
}
