package codec

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bosonnetwork/godht/dhterr"
	"github.com/bosonnetwork/godht/id"
)

func testSender() id.Id {
	return id.FromHash([]byte("sender"))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := New()
	body, err := EncodeBody(struct {
		Target id.Id `cbor:"target"`
	}{Target: id.FromHash([]byte("target"))})
	require.NoError(t, err)

	msg := &Message{
		Type:    TypeRequest,
		Method:  MethodFindNode,
		TxId:    42,
		Sender:  testSender(),
		Version: Version{Name: "godht", Number: 1},
		Want4:   true,
		Body:    body,
	}

	buf, err := c.Encode(msg)
	require.NoError(t, err)

	decoded, err := c.Decode(buf)
	require.NoError(t, err)
	require.Equal(t, msg.Type, decoded.Type)
	require.Equal(t, msg.Method, decoded.Method)
	require.Equal(t, msg.TxId, decoded.TxId)
	require.Equal(t, msg.Sender, decoded.Sender)
	require.Equal(t, msg.Version, decoded.Version)
	require.True(t, decoded.Want4)
	require.False(t, decoded.Want6)
}

func TestEncodeIsBijective(t *testing.T) {
	c := New()
	msg := &Message{
		Type:    TypeResponse,
		Method:  MethodPing,
		TxId:    7,
		Sender:  testSender(),
		Version: Version{Name: "godht", Number: 1},
	}

	first, err := c.Encode(msg)
	require.NoError(t, err)

	decoded, err := c.Decode(first)
	require.NoError(t, err)

	second, err := c.Encode(decoded)
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	c := New()
	raw := []byte{
		0xa1, // map(1)
		0x66, // text(6)
		'b', 'o', 'g', 'u', 's', '!',
		0x01, // 1
	}
	_, err := c.Decode(raw)
	require.Error(t, err)
}

func TestDecodeRejectsOversizeMessage(t *testing.T) {
	c := &Codec{MTU: 8}
	msg := &Message{
		Type:    TypeRequest,
		Method:  MethodFindNode,
		TxId:    1,
		Sender:  testSender(),
		Version: Version{Name: "godht", Number: 1},
	}
	buf, err := New().Encode(msg)
	require.NoError(t, err)
	require.Greater(t, len(buf), 8)

	_, err = c.Decode(buf)
	require.ErrorIs(t, err, dhterr.ErrMessageTooBig)
}

func TestEncodeRejectsOversizeMessage(t *testing.T) {
	c := &Codec{MTU: 8}
	msg := &Message{
		Type:    TypeRequest,
		Method:  MethodFindNode,
		TxId:    1,
		Sender:  testSender(),
		Version: Version{Name: "godht", Number: 1},
	}
	_, err := c.Encode(msg)
	require.ErrorIs(t, err, dhterr.ErrMessageTooBig)
}

func TestNodeAddrRoundTripIPv4(t *testing.T) {
	udp := &net.UDPAddr{IP: net.ParseIP("203.0.113.7"), Port: 4222}
	a := NewNodeAddr(udp)
	require.Len(t, a.IP, 4)

	back := a.UDPAddr()
	require.Equal(t, udp.Port, back.Port)
	require.True(t, udp.IP.Equal(back.IP))
}

func TestNodeAddrRoundTripIPv6(t *testing.T) {
	udp := &net.UDPAddr{IP: net.ParseIP("2001:db8::1"), Port: 4222}
	a := NewNodeAddr(udp)
	require.Len(t, a.IP, 16)

	back := a.UDPAddr()
	require.True(t, udp.IP.Equal(back.IP))
}

func TestCompactNodeBodyRoundTrip(t *testing.T) {
	nodes := []CompactNode{
		{Id: id.FromHash([]byte("a")), Addr: NewNodeAddr(&net.UDPAddr{IP: net.ParseIP("203.0.113.1"), Port: 1})},
		{Id: id.FromHash([]byte("b")), Addr: NewNodeAddr(&net.UDPAddr{IP: net.ParseIP("203.0.113.2"), Port: 2})},
	}

	body, err := EncodeBody(struct {
		Nodes4 []CompactNode `cbor:"n4"`
	}{Nodes4: nodes})
	require.NoError(t, err)

	var decoded struct {
		Nodes4 []CompactNode `cbor:"n4"`
	}
	require.NoError(t, DecodeBody(body, &decoded))
	require.Equal(t, nodes, decoded.Nodes4)
}

func TestDecodeBodyRejectsUnknownField(t *testing.T) {
	body, err := EncodeBody(struct {
		Extra string `cbor:"zzz"`
	}{Extra: "nope"})
	require.NoError(t, err)

	var decoded struct {
		Known string `cbor:"known"`
	}
	err = DecodeBody(body, &decoded)
	require.Error(t, err)
}
