package pgxutil

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/quill/internal/testutil"
)

func TestWithListener_Integration(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var payload string
	err := WithListener(ctx, db, "pgxutil-test", func(conn *pgx.Conn) error {
		if _, err := db.ExecContext(ctx, `SELECT pg_notify('pgxutil-test', 'hello')`); err != nil {
			return err
		}
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		payload = n.Payload
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", payload)

	// The pooled connection no longer listens.
	err = WithPgxConn(ctx, db, func(conn *pgx.Conn) error {
		var channels int
		if err := conn.QueryRow(ctx, `SELECT count(*) FROM pg_listening_channels()`).Scan(&channels); err != nil {
			return err
		}
		assert.Zero(t, channels)
		return nil
	})
	require.NoError(t, err)
}
