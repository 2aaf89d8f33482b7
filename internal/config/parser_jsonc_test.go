package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeJSONCRemovesCommentsAndTrailingCommas(t *testing.T) {
	input := `
{
  // line comment
  "items": [
    "one", /* block comment */
    "two",
  ],
  "nested": {
    "enabled": true,
  },
}
`

	normalized, err := normalizeJSONC(input)
	require.NoError(t, err)
	require.NotContains(t, normalized, "//")
	require.NotContains(t, normalized, "/*")
	require.NotContains(t, normalized, ",]")
	require.NotContains(t, normalized, ",}")
}

func TestNormalizeJSONCRetainsCommentLikeTextInsideStrings(t *testing.T) {
	input := `{"value":"contains // and /* comment-like */ text",}`
	normalized, err := normalizeJSONC(input)
	require.NoError(t, err)
	require.Contains(t, normalized, "// and /* comment-like */")
}

func TestNormalizeJSONCPreservesOffsets(t *testing.T) {
	input := "{\n  // port\n  \"listen\": {\"port\": 1,},\n}"
	normalized, err := normalizeJSONC(input)
	require.NoError(t, err)
	require.Len(t, normalized, len(input))
	require.Equal(t, strings.Count(input, "\n"), strings.Count(normalized, "\n"))
}

func TestNormalizeJSONCUnterminatedBlockCommentFails(t *testing.T) {
	_, err := normalizeJSONC("{ /* unterminated ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid JSONC")
}

func TestOffsetToLineCol(t *testing.T) {
	content := "line1\nline2\nline3"
	line, col := offsetToLineCol(content, 1)
	require.Equal(t, 1, line)
	require.Equal(t, 1, col)

	line, col = offsetToLineCol(content, 8) // line2, col2
	require.Equal(t, 2, line)
	require.Equal(t, 2, col)

	line, col = offsetToLineCol(content, 999)
	require.Equal(t, 3, line)
	require.Equal(t, 5, col)
}

func TestJSONCStringListUnmarshal(t *testing.T) {
	var list jsoncStringList
	require.NoError(t, list.UnmarshalJSON([]byte(`["a","b"]`)))
	require.Equal(t, []string{"a", "b"}, []string(list))

	require.NoError(t, list.UnmarshalJSON([]byte(`"a, b, , c"`)))
	require.Equal(t, []string{"a", "b", "c"}, []string(list))

	err := list.UnmarshalJSON([]byte(`123`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "expected string array")
}

func TestParseJSONCOverlaysNestedFields(t *testing.T) {
	cfg, warnings, err := parseJSONC(`{
  // bench rig on the office network
  "listen": {"host": " 127.0.0.1 ", "port": 6100, "idle_timeout_ms": 1500},
  "bridge": {
    "backend": " GPIO ",
    "rate_per_sec": 20,
    "burst": 4,
    "breaker": {"enable": false},
    "gpio": {"pins": "GPIO17, GPIO27, ,GPIO22"},
  },
  "cache": {"policy": "Intent"},
  "metrics": {"addr": "127.0.0.1:9464"},
  "mdns": {"enable": true, "instance": " bench-1 "},
  "log": {"level": "DEBUG", "stderr": true},
}`, Default())
	require.NoError(t, err)
	require.Empty(t, warnings)

	require.Equal(t, "127.0.0.1", cfg.Listen.Host)
	require.Equal(t, 6100, cfg.Listen.Port)
	require.Equal(t, 1500, cfg.Listen.IdleTimeoutMS)
	require.Equal(t, 64, cfg.Listen.MaxConnections)
	require.Equal(t, BackendGPIO, cfg.Bridge.Backend)
	require.Equal(t, float64(20), cfg.Bridge.RatePerSec)
	require.Equal(t, 4, cfg.Bridge.Burst)
	require.False(t, cfg.Bridge.Breaker.Enable)
	require.Equal(t, 5, cfg.Bridge.Breaker.MaxFailures)
	require.Equal(t, []string{"GPIO17", "GPIO27", "GPIO22"}, cfg.Bridge.GPIO.Pins)
	require.Equal(t, "intent", cfg.Cache.Policy)
	require.Equal(t, "127.0.0.1:9464", cfg.Metrics.Addr)
	require.True(t, cfg.MDNS.Enable)
	require.Equal(t, "bench-1", cfg.MDNS.Instance)
	require.Equal(t, "debug", cfg.Log.Level)
	require.True(t, cfg.Log.Stderr)
}

func TestParseJSONCWarnsOnDuplicateGPIOPins(t *testing.T) {
	cfg, warnings, err := parseJSONC(`{"bridge":{"backend":"gpio","gpio":{"pins":["GPIO5","GPIO5","GPIO6"]}}}`, Default())
	require.NoError(t, err)
	require.Equal(t, []string{"GPIO5", "GPIO6"}, cfg.Bridge.GPIO.Pins)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "more than once")
}

func TestParseJSONCRejectsUnknownFields(t *testing.T) {
	_, _, err := parseJSONC(`{"bridge":{"baudrate":9600}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown field")
}

func TestParseJSONCValidatesResult(t *testing.T) {
	_, _, err := parseJSONC(`{"cache":{"policy":"sometimes"}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "cache.policy")
}

func TestParseJSONCRejectsMultipleTopLevelValues(t *testing.T) {
	_, _, err := parseJSONC(`{"log":{"stderr":false}}{"log":{"stderr":true}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid JSONC")
}

func TestParseJSONCTypeErrorIncludesLocation(t *testing.T) {
	_, _, err := parseJSONC(`{
  "listen": {"port": "6000"}
}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 2")
	require.Contains(t, err.Error(), "column")
}

func TestParseEmptyContentReturnsBase(t *testing.T) {
	cfg, warnings, err := Parse("  \n", Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, Default(), cfg)
}

func TestParseRejectsNonObjectContent(t *testing.T) {
	_, _, err := Parse("listen.port = 6000", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "JSONC object")
}

func TestParseAcceptsLeadingComment(t *testing.T) {
	cfg, _, err := Parse("// pinbridge\n{\"listen\":{\"port\":7000}}", Default())
	require.NoError(t, err)
	require.Equal(t, 7000, cfg.Listen.Port)
}
