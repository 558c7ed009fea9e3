package monitor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCommitValueVersions(t *testing.T) {
	key := commitKey(1, "billing", "orders", 4)
	millis := int64(1500000000123)

	for _, version := range []int16{0, 1, 2, 3} {
		commit, ok, err := DecodeCommit(key, commitValue(version, 987, "host-a", millis))
		require.NoError(t, err, "value version %d", version)
		require.True(t, ok)
		assert.Equal(t, "billing", commit.Group)
		assert.Equal(t, "orders", commit.Topic)
		assert.Equal(t, int32(4), commit.Partition)
		assert.Equal(t, int64(987), commit.Offset)
		assert.Equal(t, "host-a", commit.Owner)
		assert.Equal(t, time.Unix(0, millis*int64(time.Millisecond)), commit.Timestamp)
	}
}

func TestDecodeCommitKeyVersionZero(t *testing.T) {
	commit, ok, err := DecodeCommit(commitKey(0, "g", "t", 0), commitValue(3, 1, "", 10))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "g", commit.Group)
}

func TestDecodeSkipsGroupMetadataAndTombstones(t *testing.T) {
	metadataKey := []byte{0, 2, 0, 1, 'g'}
	_, ok, err := DecodeCommit(metadataKey, []byte{0, 3})
	assert.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = DecodeCommit(commitKey(1, "g", "t", 0), nil)
	assert.NoError(t, err)
	assert.False(t, ok, "tombstone")
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string]struct{ key, value []byte }{
		"empty key":         {key: nil, value: commitValue(1, 1, "", 1)},
		"truncated key":     {key: commitKey(1, "group", "topic", 0)[:6], value: commitValue(1, 1, "", 1)},
		"unknown key":       {key: []byte{0, 9}, value: commitValue(1, 1, "", 1)},
		"null group string": {key: []byte{0, 1, 0xff, 0xff}, value: commitValue(1, 1, "", 1)},
		"truncated value":   {key: commitKey(1, "g", "t", 0), value: commitValue(1, 1, "meta", 1)[:12]},
		"unknown value":     {key: commitKey(1, "g", "t", 0), value: []byte{0, 42, 0, 0}},
	}
	for name, c := range cases {
		_, ok, err := DecodeCommit(c.key, c.value)
		assert.False(t, ok, name)
		assert.True(t, errors.Is(err, ErrDecode), name)
	}
}
