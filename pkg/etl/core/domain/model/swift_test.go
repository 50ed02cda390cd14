package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mt103 = `{1:F01BANKBEBBAXXX0000000000}
:20:REF12345
:32A:240115EUR1000,00
:50K:/12345678
JOHN DOE
:59:/87654321
:71A:SHA`

func TestParseSwiftMessage(t *testing.T) {
	msg := ParseSwiftMessage(mt103, "MT103")

	require.Len(t, msg.Fields, 5)
	assert.Equal(t, "20", msg.Fields[0].Code)
	assert.Equal(t, "REF12345", msg.Fields[0].Value)
	v, ok := msg.Field("32A")
	assert.True(t, ok)
	assert.Equal(t, "240115EUR1000,00", v)
	_, ok = msg.Field("99")
	assert.False(t, ok)
}

func TestSwiftMessage_ValueRoundTrip(t *testing.T) {
	msg := ParseSwiftMessage(mt103, "MT103")
	back, ok := SwiftMessageFromValue(msg.ToValue())

	require.True(t, ok)
	assert.Equal(t, "MT103", back.MessageType)
	assert.Len(t, back.Fields, 5)
	assert.Equal(t, "20", back.Fields[0].Code)
}
