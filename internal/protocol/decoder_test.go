package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func linesToStrings(lines [][]byte) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, string(line))
	}
	return out
}

func TestDecoderSplitsMultipleLinesInOneChunk(t *testing.T) {
	d := NewDecoder(0)

	lines, err := d.Feed([]byte("{\"cmd\":\"a\"}\n{\"cmd\":\"b\"}\n"))
	require.NoError(t, err)
	require.Equal(t, []string{`{"cmd":"a"}`, `{"cmd":"b"}`}, linesToStrings(lines))
	require.Zero(t, d.Buffered())
	require.Nil(t, d.Remainder())
}

func TestDecoderRetainsPartialLineUntilTerminated(t *testing.T) {
	d := NewDecoder(0)

	lines, err := d.Feed([]byte("{\"cmd\":\"a\"}\n{\"cmd\":"))
	require.NoError(t, err)
	require.Equal(t, []string{`{"cmd":"a"}`}, linesToStrings(lines))
	require.Equal(t, `{"cmd":`, string(d.Remainder()))

	lines, err = d.Feed([]byte("\"b\"}"))
	require.NoError(t, err)
	require.Empty(t, lines)

	lines, err = d.Feed([]byte("\n"))
	require.NoError(t, err)
	require.Equal(t, []string{`{"cmd":"b"}`}, linesToStrings(lines))
	require.Nil(t, d.Remainder())
}

func TestDecoderSkipsBlankLinesAndTrimsWhitespace(t *testing.T) {
	d := NewDecoder(0)

	lines, err := d.Feed([]byte("\n   \n\t{\"cmd\":\"a\"}  \r\n\n"))
	require.NoError(t, err)
	require.Equal(t, []string{`{"cmd":"a"}`}, linesToStrings(lines))
}

func TestDecoderByteAtATime(t *testing.T) {
	d := NewDecoder(0)
	input := "one\ntwo\nthree"

	var got []string
	for i := 0; i < len(input); i++ {
		lines, err := d.Feed([]byte{input[i]})
		require.NoError(t, err)
		got = append(got, linesToStrings(lines)...)
	}

	require.Equal(t, []string{"one", "two"}, got)
	require.Equal(t, "three", string(d.Remainder()))
}

func TestDecoderReturnedLinesSurviveLaterFeeds(t *testing.T) {
	d := NewDecoder(0)

	lines, err := d.Feed([]byte("first\nsecond-partial"))
	require.NoError(t, err)
	require.Len(t, lines, 1)

	_, err = d.Feed([]byte("xxxxxxxxxxxxxxxxxxxxxxxx\n"))
	require.NoError(t, err)
	require.Equal(t, "first", string(lines[0]))
}

func TestDecoderRejectsOverlongUnterminatedLine(t *testing.T) {
	d := NewDecoder(8)

	lines, err := d.Feed([]byte("ok\n0123456789"))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrLineTooLong))
	require.Equal(t, []string{"ok"}, linesToStrings(lines))
}

func TestDecoderLimitIgnoresCompletedLines(t *testing.T) {
	d := NewDecoder(8)

	lines, err := d.Feed([]byte("0123456789abcdef\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"0123456789abcdef"}, linesToStrings(lines))
}

func TestDecoderReset(t *testing.T) {
	d := NewDecoder(0)
	_, err := d.Feed([]byte("partial"))
	require.NoError(t, err)

	d.Reset()
	require.Zero(t, d.Buffered())
	require.Nil(t, d.Remainder())
}
