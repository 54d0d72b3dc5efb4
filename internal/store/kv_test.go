package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runKVContract exercises behavior every KV implementation must share.
func runKVContract(t *testing.T, open func(t *testing.T) KV) {
	ctx := context.Background()

	t.Run("put and get", func(t *testing.T) {
		kv := open(t)
		err := kv.Update(ctx, "notes", func(tx KVTx) error {
			require.NoError(t, tx.Put("b", []byte(`{"key":"b"}`)))
			return tx.Put("a", []byte(`{"key":"a"}`))
		})
		require.NoError(t, err)

		keys, err := kv.Keys(ctx, "notes")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, keys)

		values, err := kv.GetMany(ctx, "notes", []string{"b", "missing", "a"})
		require.NoError(t, err)
		require.Len(t, values, 3)
		assert.Equal(t, `{"key":"b"}`, string(values[0]))
		assert.Nil(t, values[1])
		assert.Equal(t, `{"key":"a"}`, string(values[2]))
	})

	t.Run("overwrite and delete", func(t *testing.T) {
		kv := open(t)
		require.NoError(t, kv.Update(ctx, "ns", func(tx KVTx) error {
			return tx.Put("k", []byte("v1"))
		}))
		require.NoError(t, kv.Update(ctx, "ns", func(tx KVTx) error {
			if err := tx.Put("k", []byte("v2")); err != nil {
				return err
			}
			return tx.Put("gone", []byte("x"))
		}))
		require.NoError(t, kv.Update(ctx, "ns", func(tx KVTx) error {
			return tx.Delete("gone")
		}))

		keys, err := kv.Keys(ctx, "ns")
		require.NoError(t, err)
		assert.Equal(t, []string{"k"}, keys)

		values, err := kv.GetMany(ctx, "ns", []string{"k"})
		require.NoError(t, err)
		assert.Equal(t, "v2", string(values[0]))
	})

	t.Run("failed update writes nothing", func(t *testing.T) {
		kv := open(t)
		boom := errors.New("boom")
		err := kv.Update(ctx, "ns", func(tx KVTx) error {
			require.NoError(t, tx.Put("a", []byte("1")))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		keys, err := kv.Keys(ctx, "ns")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("namespace isolation", func(t *testing.T) {
		kv := open(t)
		require.NoError(t, kv.Update(ctx, "alpha", func(tx KVTx) error {
			return tx.Put("shared", []byte("A"))
		}))
		require.NoError(t, kv.Update(ctx, "alphabet", func(tx KVTx) error {
			return tx.Put("shared", []byte("B"))
		}))

		keys, err := kv.Keys(ctx, "alpha")
		require.NoError(t, err)
		assert.Equal(t, []string{"shared"}, keys)

		values, err := kv.GetMany(ctx, "alphabet", []string{"shared"})
		require.NoError(t, err)
		assert.Equal(t, "B", string(values[0]))

		keys, err = kv.Keys(ctx, "empty")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("empty key rejected", func(t *testing.T) {
		kv := open(t)
		err := kv.Update(ctx, "ns", func(tx KVTx) error {
			return tx.Put("", []byte("x"))
		})
		assert.Error(t, err)
	})

	t.Run("many keys", func(t *testing.T) {
		kv := open(t)
		var want []string
		require.NoError(t, kv.Update(ctx, "bulk", func(tx KVTx) error {
			for i := 0; i < 1200; i++ {
				k := fmt.Sprintf("k%05d", i)
				want = append(want, k)
				if err := tx.Put(k, []byte(k)); err != nil {
					return err
				}
			}
			return nil
		}))

		keys, err := kv.Keys(ctx, "bulk")
		require.NoError(t, err)
		assert.Equal(t, want, keys)

		values, err := kv.GetMany(ctx, "bulk", keys)
		require.NoError(t, err)
		for i, v := range values {
			assert.Equal(t, keys[i], string(v))
		}
	})
}
