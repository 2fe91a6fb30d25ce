package table_test

import (
	"testing"

	"github.com/ostafen/fido/pkg/table"
	"github.com/stretchr/testify/require"
)

func TestPrefixTable_Walk(t *testing.T) {
	tb := table.New[string]()
	tb.Insert([]byte("PK"), "zip")
	tb.Insert([]byte("PK\x03\x04"), "zip-local")
	tb.Insert([]byte("PK\x03\x04"), "ooxml")
	tb.Insert([]byte("%PDF"), "pdf")
	tb.Insert(nil, "ignored")

	require.Equal(t, 4, tb.Size())
	require.Equal(t, 3, tb.Keys())
	require.Equal(t, []string{"zip-local", "ooxml"}, tb.Get([]byte("PK\x03\x04")))

	collect := func(key string) []string {
		var got []string
		tb.Walk([]byte(key), func(v string) bool {
			got = append(got, v)
			return false
		})
		return got
	}

	require.Equal(t, []string{"zip", "zip-local", "ooxml"}, collect("PK\x03\x04\x14\x00"))
	require.Equal(t, []string{"zip"}, collect("PK\x05\x06"))
	require.Equal(t, []string{"pdf"}, collect("%PDF-1.7"))
	require.Empty(t, collect("%PD"))
	require.Empty(t, collect("GIF89a"))
	require.Empty(t, collect(""))
}

func TestPrefixTable_WalkStops(t *testing.T) {
	tb := table.New[int]()
	tb.Insert([]byte{0x01}, 1)
	tb.Insert([]byte{0x01, 0x02}, 2)

	var got []int
	tb.Walk([]byte{0x01, 0x02, 0x03}, func(v int) bool {
		got = append(got, v)
		return true
	})
	require.Equal(t, []int{1}, got)
}

func TestPrefixTable_LongKeys(t *testing.T) {
	tb := table.New[string]()
	tb.Insert([]byte("0123456789abcdef"), "long")
	tb.Insert([]byte("0123456789abcdeX"), "other")

	var got []string
	tb.Walk([]byte("0123456789abcdef!"), func(v string) bool {
		got = append(got, v)
		return false
	})
	require.Equal(t, []string{"long"}, got)
}
