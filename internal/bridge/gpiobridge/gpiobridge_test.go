package gpiobridge

import (
	"context"
	"testing"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/rbright/pinbridge/internal/bridge"
	"github.com/stretchr/testify/require"
)

func testLookup(pins ...*gpiotest.Pin) Lookup {
	byName := make(map[string]gpio.PinIO, len(pins))
	for _, p := range pins {
		byName[p.N] = p
	}
	return func(name string) gpio.PinIO {
		p, ok := byName[name]
		if !ok {
			return nil
		}
		return p
	}
}

func TestSetAndGetPin(t *testing.T) {
	relay := &gpiotest.Pin{N: "GPIO17"}
	b := New(testLookup(relay), nil)

	_, err := b.Call(context.Background(), bridge.OpSetPin, "GPIO17", true)
	require.NoError(t, err)
	require.Equal(t, gpio.High, relay.Read())

	got, err := b.Call(context.Background(), bridge.OpGetPin, "GPIO17")
	require.NoError(t, err)
	require.Equal(t, true, got)
}

func TestGetPinReadsInputLevel(t *testing.T) {
	button := &gpiotest.Pin{N: "GPIO4", L: gpio.High}
	b := New(testLookup(button), nil)

	got, err := b.Call(context.Background(), bridge.OpGetPin, "GPIO4")
	require.NoError(t, err)
	require.Equal(t, true, got)
}

func TestSetAllWritesGroup(t *testing.T) {
	r1 := &gpiotest.Pin{N: "GPIO17"}
	r2 := &gpiotest.Pin{N: "GPIO27"}
	b := New(testLookup(r1, r2), []string{"GPIO17", "GPIO27"})

	_, err := b.Call(context.Background(), bridge.OpSetAll, true)
	require.NoError(t, err)
	require.Equal(t, gpio.High, r1.Read())
	require.Equal(t, gpio.High, r2.Read())
}

func TestSetAllWithoutGroupFails(t *testing.T) {
	b := New(testLookup(), nil)

	_, err := b.Call(context.Background(), bridge.OpSetAll, false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no gpio pins configured")
}

func TestUnknownPin(t *testing.T) {
	b := New(testLookup(), nil)

	_, err := b.Call(context.Background(), bridge.OpSetPin, "GPIO99", false)
	require.Error(t, err)
	require.Contains(t, err.Error(), `pin "GPIO99" not found`)
}

func TestUnsupportedOperations(t *testing.T) {
	b := New(testLookup(), nil)

	_, err := b.Call(context.Background(), bridge.OpGetAnalog, "A0")
	require.ErrorIs(t, err, bridge.ErrUnsupported)

	_, err = b.Call(context.Background(), bridge.OpMatrixPrint, "hi")
	require.ErrorIs(t, err, bridge.ErrUnsupported)
}

func TestUnresolvedListsMissingGroupPins(t *testing.T) {
	r1 := &gpiotest.Pin{N: "GPIO17"}
	b := New(testLookup(r1), []string{"GPIO17", "GPIO99"})

	require.Equal(t, []string{"GPIO99"}, b.Unresolved())
}
