package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueRoundTrip(t *testing.T) {
	values := []Value{
		NullValue(),
		IntValue(-42),
		FloatValue(3.5),
		BoolValue(true),
		StringValue("hello"),
		BytesValue([]byte{1, 2, 3}),
	}
	for _, v := range values {
		buf := EncodeValue(nil, v)
		got, n, ok := DecodeValue(buf)
		assert.True(t, ok)
		assert.Equal(t, len(buf), n)
		assert.True(t, v.Equal(got))
	}
}

func TestDecodeValueTruncated(t *testing.T) {
	_, _, ok := DecodeValue([]byte{tagInt64, 1, 2})
	assert.False(t, ok)
}

func TestDecodeValueUnknownTag(t *testing.T) {
	_, _, ok := DecodeValue([]byte{0xFF})
	assert.False(t, ok)
}

func TestPayloadRoundTrip(t *testing.T) {
	p := Payload{
		"title": StringValue("Hello"),
		"body":  StringValue("World"),
		"views": IntValue(7),
	}
	buf := EncodePayload(nil, p)
	got, n, ok := DecodePayload(buf)
	assert.True(t, ok)
	assert.Equal(t, len(buf), n)
	assert.Len(t, got, 3)
	for k, v := range p {
		assert.True(t, v.Equal(got[k]))
	}
}

func TestPayloadEncodingIsDeterministic(t *testing.T) {
	p := Payload{"b": IntValue(1), "a": IntValue(2)}
	buf1 := EncodePayload(nil, p)
	buf2 := EncodePayload(nil, p)
	assert.Equal(t, buf1, buf2)
}
