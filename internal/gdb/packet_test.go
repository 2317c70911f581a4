package gdb

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

func TestChecksum(t *testing.T) {
	tests := []struct {
		payload string
		want    uint8
	}{
		{"", 0x00},
		{"OK", 0x9A},
		{"g", 0x67},
		{"S05", 0xB8},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			assert.Equal(t, tt.want, checksum(tt.payload))
		})
	}
}

func TestRecvPacket(t *testing.T) {
	var acks bytes.Buffer
	r := bufio.NewReader(strings.NewReader("$qSupported#37"))

	payload, err := recvPacket(r, &acks)
	assert.NoError(t, err)
	assert.Equal(t, "qSupported", payload)
	assert.Equal(t, "+", acks.String())
}

func TestRecvPacketSkipsGarbage(t *testing.T) {
	var acks bytes.Buffer
	r := bufio.NewReader(strings.NewReader("+++$g#67"))

	payload, err := recvPacket(r, &acks)
	assert.NoError(t, err)
	assert.Equal(t, "g", payload)
}

func TestRecvPacketBadChecksum(t *testing.T) {
	var out bytes.Buffer
	r := bufio.NewReader(strings.NewReader("$g#00"))

	_, err := recvPacket(r, &out)
	assert.Error(t, err)
	assert.Equal(t, "-", out.String())
}

func TestRecvPacketInterrupt(t *testing.T) {
	var out bytes.Buffer
	r := bufio.NewReader(strings.NewReader("\x03"))

	payload, err := recvPacket(r, &out)
	assert.NoError(t, err)
	assert.Equal(t, string(rune(interruptByte)), payload)
}

func TestSendPacket(t *testing.T) {
	var out bytes.Buffer
	r := bufio.NewReader(strings.NewReader("+"))

	assert.NoError(t, sendPacket(r, &out, "OK"))
	assert.Equal(t, "$OK#9a", out.String())
}

func TestSendPacketNack(t *testing.T) {
	var out bytes.Buffer
	r := bufio.NewReader(strings.NewReader("-"))

	assert.Error(t, sendPacket(r, &out, "OK"))
}

func TestRegisterCodec(t *testing.T) {
	tests := []struct {
		value uint32
		hex   string
	}{
		{0x12345678, "78563412"},
		{0, "00000000"},
		{0xFFFFFFFF, "ffffffff"},
		{0x080000C0, "c0000008"},
	}

	for _, tt := range tests {
		t.Run(tt.hex, func(t *testing.T) {
			assert.Equal(t, tt.hex, encodeU32LE(tt.value))

			decoded, err := decodeU32LE(tt.hex)
			assert.NoError(t, err)
			assert.Equal(t, tt.value, decoded)
		})
	}
}

func TestDecodeU32LEInvalid(t *testing.T) {
	_, err := decodeU32LE("zz")
	assert.Error(t, err)

	_, err = decodeU32LE("zzzzzzzz")
	assert.Error(t, err)
}
