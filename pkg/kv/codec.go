package kv

import (
	"encoding/binary"
	"errors"

	"github.com/cuemby/nexus/pkg/raft"
)

// Op is the command tag
type Op uint8

const (
	OpSet    Op = 0
	OpGet    Op = 1
	OpDelete Op = 2
)

// Command is a tagged-variant key-value command. Value is meaningful for
// OpSet only.
type Command struct {
	Op    Op
	Key   string
	Value string
}

// RespKind is the response tag
type RespKind uint8

const (
	RespValue RespKind = 0
	RespAck   RespKind = 1
)

// Response is a tagged-variant command response. Value/Found are meaningful
// for RespValue only; Found is false when the key was absent.
type Response struct {
	Kind  RespKind
	Value string
	Found bool
}

var errReadOnly = errors.New("kv: query accepts read-only commands only")

// The command encoding is tag (u8) followed by the variant's fields, each
// string u32-length-prefixed big-endian.

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func readString(buf []byte, what string) (string, []byte, error) {
	if len(buf) < 4 {
		return "", nil, &raft.DecodeError{What: what, Reason: "truncated string length"}
	}
	n := int(binary.BigEndian.Uint32(buf))
	buf = buf[4:]
	if len(buf) < n {
		return "", nil, &raft.DecodeError{What: what, Reason: "string length exceeds buffer"}
	}
	return string(buf[:n]), buf[n:], nil
}

// EncodeCommand serializes a command for the replicated log
func EncodeCommand(c Command) []byte {
	buf := []byte{byte(c.Op)}
	buf = appendString(buf, c.Key)
	if c.Op == OpSet {
		buf = appendString(buf, c.Value)
	}
	return buf
}

// DecodeCommand deserializes a command payload
func DecodeCommand(buf []byte) (Command, error) {
	const what = "kv command"
	if len(buf) == 0 {
		return Command{}, &raft.DecodeError{What: what, Reason: "empty payload"}
	}

	c := Command{Op: Op(buf[0])}
	rest := buf[1:]

	var err error
	switch c.Op {
	case OpSet:
		if c.Key, rest, err = readString(rest, what); err != nil {
			return Command{}, err
		}
		if c.Value, rest, err = readString(rest, what); err != nil {
			return Command{}, err
		}
	case OpGet, OpDelete:
		if c.Key, rest, err = readString(rest, what); err != nil {
			return Command{}, err
		}
	default:
		return Command{}, &raft.DecodeError{What: what, Reason: "unknown command tag"}
	}

	if len(rest) != 0 {
		return Command{}, &raft.DecodeError{What: what, Reason: "trailing bytes"}
	}
	return c, nil
}

// EncodeResponse serializes a command response
func EncodeResponse(r Response) []byte {
	buf := []byte{byte(r.Kind)}
	if r.Kind == RespValue {
		if r.Found {
			buf = append(buf, 1)
			buf = appendString(buf, r.Value)
		} else {
			buf = append(buf, 0)
		}
	}
	return buf
}

// DecodeResponse deserializes a command response
func DecodeResponse(buf []byte) (Response, error) {
	const what = "kv response"
	if len(buf) == 0 {
		return Response{}, &raft.DecodeError{What: what, Reason: "empty payload"}
	}

	r := Response{Kind: RespKind(buf[0])}
	rest := buf[1:]

	switch r.Kind {
	case RespAck:
	case RespValue:
		if len(rest) < 1 {
			return Response{}, &raft.DecodeError{What: what, Reason: "truncated presence flag"}
		}
		r.Found = rest[0] != 0
		rest = rest[1:]
		if r.Found {
			var err error
			if r.Value, rest, err = readString(rest, what); err != nil {
				return Response{}, err
			}
		}
	default:
		return Response{}, &raft.DecodeError{What: what, Reason: "unknown response tag"}
	}

	if len(rest) != 0 {
		return Response{}, &raft.DecodeError{What: what, Reason: "trailing bytes"}
	}
	return r, nil
}

// The snapshot state encoding is a u32 pair count followed by key/value
// string pairs.

func encodeState(pairs [][2]string) []byte {
	buf := binary.BigEndian.AppendUint32(nil, uint32(len(pairs)))
	for _, p := range pairs {
		buf = appendString(buf, p[0])
		buf = appendString(buf, p[1])
	}
	return buf
}

func decodeState(buf []byte) ([][2]string, error) {
	const what = "kv snapshot state"
	if len(buf) < 4 {
		return nil, &raft.DecodeError{What: what, Reason: "truncated pair count"}
	}
	n := binary.BigEndian.Uint32(buf)
	rest := buf[4:]

	pairs := make([][2]string, 0, n)
	for i := uint32(0); i < n; i++ {
		var key, value string
		var err error
		if key, rest, err = readString(rest, what); err != nil {
			return nil, err
		}
		if value, rest, err = readString(rest, what); err != nil {
			return nil, err
		}
		pairs = append(pairs, [2]string{key, value})
	}
	if len(rest) != 0 {
		return nil, &raft.DecodeError{What: what, Reason: "trailing bytes"}
	}
	return pairs, nil
}
