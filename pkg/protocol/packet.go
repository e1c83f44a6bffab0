// Package protocol implements the binary wire format shared by the chat
// client and server. A packet is encoded as a one-byte kind tag followed by
// its fields in declared order; strings are a 4-byte little-endian length
// followed by raw bytes, never null-terminated. On stream transports one
// encoded packet travels inside a frame: a 4-byte little-endian payload
// length followed by the payload itself.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// FrameHeaderSize is the byte length of the frame length prefix. The
	// prefix counts only the payload, not itself.
	FrameHeaderSize = 4

	// MaxFrameSize caps the declared payload length of a frame. A peer
	// announcing a larger (or zero-length) frame is disconnected before
	// any body bytes are read.
	MaxFrameSize = 1 << 20
)

var (
	// ErrMalformedPacket reports an unknown kind tag or a payload shorter
	// than its fields demand.
	ErrMalformedPacket = errors.New("protocol: malformed packet")

	// ErrFrameTooLarge reports a frame whose declared payload length is
	// zero or exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("protocol: frame length out of range")
)

// Kind identifies a packet variant. The values are part of the wire format
// and must never be renumbered.
type Kind byte

const (
	KindLogin Kind = iota
	KindCreateUser
	KindChatMessage
	KindLoginSuccess
	KindLoginFailed
	KindAccountCreated
	KindAccountExists
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindLogin:
		return "LOGIN"
	case KindCreateUser:
		return "CREATE_USER"
	case KindChatMessage:
		return "CHAT_MESSAGE"
	case KindLoginSuccess:
		return "LOGIN_SUCCESS"
	case KindLoginFailed:
		return "LOGIN_FAILED"
	case KindAccountCreated:
		return "ACCOUNT_CREATED"
	case KindAccountExists:
		return "ACCOUNT_EXISTS"
	default:
		return "UNKNOWN"
	}
}

// Packet is one typed protocol message. The set of implementations is
// closed; Decode only ever produces the types defined in this package.
type Packet interface {
	Kind() Kind

	// appendPayload appends the packet's fields, without the kind tag.
	appendPayload(dst []byte) []byte
}

// Login asks the server to authenticate an existing account.
type Login struct {
	Username string
	Password string
}

// CreateUser asks the server to register a new account. A successful
// registration does not log the account in.
type CreateUser struct {
	Username string
	Password string
}

// ChatMessage carries one chat line. Clients may send any Sender value;
// the server rewrites it to the authenticated username before relaying.
type ChatMessage struct {
	Sender  string
	Message string
}

// LoginSuccess reports a successful login.
type LoginSuccess struct{}

// LoginFailed reports a rejected login, or rejects a chat message sent
// before logging in.
type LoginFailed struct{}

// AccountCreated reports a successful account registration.
type AccountCreated struct{}

// AccountExists reports that the requested username is already taken.
type AccountExists struct{}

// Kind implements Packet.
func (*Login) Kind() Kind { return KindLogin }

// Kind implements Packet.
func (*CreateUser) Kind() Kind { return KindCreateUser }

// Kind implements Packet.
func (*ChatMessage) Kind() Kind { return KindChatMessage }

// Kind implements Packet.
func (*LoginSuccess) Kind() Kind { return KindLoginSuccess }

// Kind implements Packet.
func (*LoginFailed) Kind() Kind { return KindLoginFailed }

// Kind implements Packet.
func (*AccountCreated) Kind() Kind { return KindAccountCreated }

// Kind implements Packet.
func (*AccountExists) Kind() Kind { return KindAccountExists }

func (p *Login) appendPayload(dst []byte) []byte {
	dst = appendString(dst, p.Username)
	return appendString(dst, p.Password)
}

func (p *CreateUser) appendPayload(dst []byte) []byte {
	dst = appendString(dst, p.Username)
	return appendString(dst, p.Password)
}

func (p *ChatMessage) appendPayload(dst []byte) []byte {
	dst = appendString(dst, p.Sender)
	return appendString(dst, p.Message)
}

func (*LoginSuccess) appendPayload(dst []byte) []byte { return dst }

func (*LoginFailed) appendPayload(dst []byte) []byte { return dst }

func (*AccountCreated) appendPayload(dst []byte) []byte { return dst }

func (*AccountExists) appendPayload(dst []byte) []byte { return dst }

// Encode serializes a packet: the kind tag byte, then each field in
// declared order.
func Encode(p Packet) []byte {
	buf := make([]byte, 1, 64)
	buf[0] = byte(p.Kind())
	return p.appendPayload(buf)
}

// AppendFrame appends a frame header for payload, then the payload itself.
// Stream transports share this rule so that the length prefix is written in
// exactly one place.
func AppendFrame(dst, payload []byte) []byte {
	var header [FrameHeaderSize]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))
	dst = append(dst, header[:]...)
	return append(dst, payload...)
}

// EncodeFrame serializes a packet and wraps it in a frame.
func EncodeFrame(p Packet) []byte {
	payload := Encode(p)
	frame := make([]byte, 0, FrameHeaderSize+len(payload))
	return AppendFrame(frame, payload)
}

// Decode parses one encoded packet from data. Empty input yields (nil, nil):
// the absence of a packet, not an error. An unknown kind tag or a payload
// shorter than its fields demand yields ErrMalformedPacket. Bytes past the
// last field are ignored.
func Decode(data []byte) (Packet, error) {
	if len(data) == 0 {
		return nil, nil
	}
	body := data[1:]
	switch Kind(data[0]) {
	case KindLogin:
		username, rest, err := readString(body)
		if err != nil {
			return nil, err
		}
		password, _, err := readString(rest)
		if err != nil {
			return nil, err
		}
		return &Login{Username: username, Password: password}, nil
	case KindCreateUser:
		username, rest, err := readString(body)
		if err != nil {
			return nil, err
		}
		password, _, err := readString(rest)
		if err != nil {
			return nil, err
		}
		return &CreateUser{Username: username, Password: password}, nil
	case KindChatMessage:
		sender, rest, err := readString(body)
		if err != nil {
			return nil, err
		}
		message, _, err := readString(rest)
		if err != nil {
			return nil, err
		}
		return &ChatMessage{Sender: sender, Message: message}, nil
	case KindLoginSuccess:
		return &LoginSuccess{}, nil
	case KindLoginFailed:
		return &LoginFailed{}, nil
	case KindAccountCreated:
		return &AccountCreated{}, nil
	case KindAccountExists:
		return &AccountExists{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind 0x%02x", ErrMalformedPacket, data[0])
	}
}

// appendString appends the 4-byte little-endian length of s followed by its
// raw bytes.
func appendString(dst []byte, s string) []byte {
	var length [4]byte
	binary.LittleEndian.PutUint32(length[:], uint32(len(s)))
	dst = append(dst, length[:]...)
	return append(dst, s...)
}

// readString consumes one length-prefixed string from data and returns the
// remaining bytes.
func readString(data []byte) (s string, rest []byte, err error) {
	if len(data) < 4 {
		return "", nil, fmt.Errorf("%w: truncated string length", ErrMalformedPacket)
	}
	n := binary.LittleEndian.Uint32(data)
	data = data[4:]
	if uint64(n) > uint64(len(data)) {
		return "", nil, fmt.Errorf("%w: string shorter than declared length %d", ErrMalformedPacket, n)
	}
	return string(data[:n]), data[n:], nil
}
