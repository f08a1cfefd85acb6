// Package pgxutil reaches the native pgx connection behind database/sql.
package pgxutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// UnlistenTimeout bounds the UNLISTEN issued when a listener returns.
const UnlistenTimeout = 2 * time.Second

// ErrNotPgx is returned when the pool is not backed by the pgx stdlib driver.
var ErrNotPgx = errors.New("unexpected driver connection type; expected *stdlib.Conn")

// WithPgxConn acquires a *pgx.Conn via the stdlib bridge and executes fn with it.
// The connection goes back to the pool when fn returns; returning
// driver.ErrBadConn from fn discards it instead.
func WithPgxConn(ctx context.Context, db *sql.DB, fn func(*pgx.Conn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		// connection close failure is best-effort and ignored
		_ = conn.Close()
	}()

	return conn.Raw(func(dc any) error {
		std, ok := dc.(*stdlib.Conn)
		if !ok {
			return ErrNotPgx
		}
		return fn(std.Conn())
	})
}

// WithListener holds a pooled connection subscribed to channel for the
// duration of fn. fn runs only after LISTEN succeeded. On return every
// subscription is cleared; a connection that cannot be cleared is dropped
// from the pool, and onUnlistenErr (if set) is told why.
func WithListener(ctx context.Context, db *sql.DB, channel string, fn func(*pgx.Conn) error, onUnlistenErr func(error)) error {
	return WithPgxConn(ctx, db, func(conn *pgx.Conn) error {
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		fnErr := fn(conn)

		cleanCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), UnlistenTimeout)
		defer cancel()
		if _, err := conn.Exec(cleanCtx, "UNLISTEN *"); err != nil {
			if onUnlistenErr != nil {
				onUnlistenErr(err)
			}
			return errors.Join(fnErr, driver.ErrBadConn)
		}
		return fnErr
	})
}
