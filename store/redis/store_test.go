package redis

import (
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	s := &Store{client: client, prefix: DefaultPrefix}
	assert.Equal(t, "rulesync:ledger", s.ledgerKey())
	assert.Equal(t, "rulesync:ledger:history", s.historyKey())

	s = New(client, WithPrefix("edge:"), WithHistory(3))
	assert.Equal(t, "edge:ledger", s.ledgerKey())
	assert.Equal(t, 3, s.history)

	s = New(client, WithHistory(-1))
	assert.Equal(t, 0, s.history)
}
