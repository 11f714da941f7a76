package ndjson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScannerSingleChunk(t *testing.T) {
	s := &Scanner{}
	s.Append([]byte("{\"a\":1}\n{\"b\":2}\n"))

	line, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(line))

	line, ok = s.Next()
	require.True(t, ok)
	assert.Equal(t, `{"b":2}`, string(line))

	_, ok = s.Next()
	assert.False(t, ok)
	assert.Equal(t, 0, s.Buffered())
}

// TestScannerAllBoundaries verifies that splitting the input at every
// possible byte boundary yields exactly the records of a single-chunk
// delivery, in the same order.
func TestScannerAllBoundaries(t *testing.T) {
	records := []string{
		`{"id":"1","data":{"n":1}}`,
		`{"id":"2","data":{"s":"a\nb"}}`,
		`{"id":"3"}`,
	}
	input := ""
	for _, r := range records {
		input += r + "\n"
	}

	for split := 0; split <= len(input); split++ {
		s := &Scanner{}
		s.Append([]byte(input[:split]))

		var got []string
		for {
			line, ok := s.Next()
			if !ok {
				break
			}
			got = append(got, string(line))
		}

		s.Append([]byte(input[split:]))
		for {
			line, ok := s.Next()
			if !ok {
				break
			}
			got = append(got, string(line))
		}

		require.Equal(t, records, got, "split at byte %d", split)
		assert.Equal(t, 0, s.Buffered(), "split at byte %d", split)
	}
}

func TestScannerByteAtATime(t *testing.T) {
	input := "{\"a\":1}\n{\"b\":2}\n"
	s := &Scanner{}

	var got []string
	for i := 0; i < len(input); i++ {
		s.Append([]byte{input[i]})
		for {
			line, ok := s.Next()
			if !ok {
				break
			}
			got = append(got, string(line))
		}
	}

	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`}, got)
}

func TestScannerRetainsPartialRecord(t *testing.T) {
	s := &Scanner{}
	s.Append([]byte(`{"id":"1","da`))

	_, ok := s.Next()
	require.False(t, ok)
	assert.Equal(t, 13, s.Buffered())

	s.Append([]byte("ta\":5}\n"))
	line, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, `{"id":"1","data":5}`, string(line))
}

func TestScannerSkipsBlankLines(t *testing.T) {
	s := &Scanner{}
	s.Append([]byte("\n\r\n{\"a\":1}\n   \n{\"b\":2}\n"))

	line, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(line))

	line, ok = s.Next()
	require.True(t, ok)
	assert.Equal(t, `{"b":2}`, string(line))

	_, ok = s.Next()
	assert.False(t, ok)
}

func TestScannerCRLF(t *testing.T) {
	s := &Scanner{}
	s.Append([]byte("{\"a\":1}\r\n{\"b\":2}\r\n"))

	line, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(line))

	line, ok = s.Next()
	require.True(t, ok)
	assert.Equal(t, `{"b":2}`, string(line))
}

func TestScannerFlush(t *testing.T) {
	t.Run("unterminated final record", func(t *testing.T) {
		s := &Scanner{}
		s.Append([]byte("{\"a\":1}\n{\"b\":2}"))

		line, ok := s.Next()
		require.True(t, ok)
		assert.Equal(t, `{"a":1}`, string(line))

		_, ok = s.Next()
		require.False(t, ok)

		line, ok = s.Flush()
		require.True(t, ok)
		assert.Equal(t, `{"b":2}`, string(line))
	})

	t.Run("whitespace only", func(t *testing.T) {
		s := &Scanner{}
		s.Append([]byte("  \r"))
		_, ok := s.Flush()
		assert.False(t, ok)
	})

	t.Run("empty", func(t *testing.T) {
		s := &Scanner{}
		_, ok := s.Flush()
		assert.False(t, ok)
	})
}
