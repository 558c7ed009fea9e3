package monitor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/sundy-li/offsetmon/model"
)

var ErrDecode = errors.New("malformed offset commit record")

// recordReader walks the big-endian encoding used by the offsets topic.
type recordReader struct {
	buf []byte
	pos int
	err error
}

func (r *recordReader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || len(r.buf)-r.pos < n {
		r.err = fmt.Errorf("%w: need %d bytes at %d, have %d", ErrDecode, n, r.pos, len(r.buf)-r.pos)
		return false
	}
	return true
}

func (r *recordReader) int16() int16 {
	if !r.need(2) {
		return 0
	}
	v := int16(binary.BigEndian.Uint16(r.buf[r.pos:]))
	r.pos += 2
	return v
}

func (r *recordReader) int32() int32 {
	if !r.need(4) {
		return 0
	}
	v := int32(binary.BigEndian.Uint32(r.buf[r.pos:]))
	r.pos += 4
	return v
}

func (r *recordReader) int64() int64 {
	if !r.need(8) {
		return 0
	}
	v := int64(binary.BigEndian.Uint64(r.buf[r.pos:]))
	r.pos += 8
	return v
}

func (r *recordReader) string() string {
	n := int(r.int16())
	if n < 0 {
		return ""
	}
	if !r.need(n) {
		return ""
	}
	s := string(r.buf[r.pos : r.pos+n])
	r.pos += n
	return s
}

// DecodeCommit decodes one record of the offsets topic. ok is false for
// records that are not offset commits: group metadata and tombstones.
func DecodeCommit(key, value []byte) (commit model.CommittedOffset, ok bool, err error) {
	kr := &recordReader{buf: key}
	switch version := kr.int16(); {
	case kr.err != nil:
		return commit, false, kr.err
	case version == 0 || version == 1:
		commit.Group = kr.string()
		commit.Topic = kr.string()
		commit.Partition = kr.int32()
		if kr.err != nil {
			return commit, false, kr.err
		}
	case version == 2:
		return commit, false, nil
	default:
		return commit, false, fmt.Errorf("%w: key version %d", ErrDecode, version)
	}

	if value == nil {
		return commit, false, nil
	}

	vr := &recordReader{buf: value}
	var commitMillis int64
	switch version := vr.int16(); {
	case vr.err != nil:
		return commit, false, vr.err
	case version == 0:
		commit.Offset = vr.int64()
		commit.Owner = vr.string()
		commitMillis = vr.int64()
	case version == 1:
		commit.Offset = vr.int64()
		commit.Owner = vr.string()
		commitMillis = vr.int64()
		vr.int64() // expire timestamp
	case version == 2:
		commit.Offset = vr.int64()
		commit.Owner = vr.string()
		commitMillis = vr.int64()
	case version == 3:
		commit.Offset = vr.int64()
		vr.int32() // leader epoch
		commit.Owner = vr.string()
		commitMillis = vr.int64()
	default:
		return commit, false, fmt.Errorf("%w: value version %d", ErrDecode, version)
	}
	if vr.err != nil {
		return commit, false, vr.err
	}
	commit.Timestamp = time.Unix(0, commitMillis*int64(time.Millisecond))
	return commit, true, nil
}
