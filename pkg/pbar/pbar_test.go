package pbar_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ostafen/fido/pkg/pbar"
	"github.com/stretchr/testify/require"
)

func TestProgress(t *testing.T) {
	var buf bytes.Buffer

	p := pbar.NewProgressBarState(&buf, 4)
	p.Add(0, 1024)
	p.Add(1, 512)
	p.Add(0, 0)
	p.Finish()

	out := buf.String()
	require.Contains(t, out, "\r[==========>         ]  50% (2/4) | Members: 1 | 1.5 KiB")
	require.True(t, strings.HasSuffix(out, "\n"))
	require.Equal(t, 2, p.ProcessedObjects)
	require.Equal(t, int64(1536), p.ProcessedBytes)
}

func TestProgress_Complete(t *testing.T) {
	var buf bytes.Buffer

	p := pbar.NewProgressBarState(&buf, 1)
	p.Add(0, 10)
	p.Render(true)
	require.Contains(t, buf.String(), "[====================] 100% (1/1)")
}

func TestProgress_UnknownTotal(t *testing.T) {
	var buf bytes.Buffer

	p := pbar.NewProgressBarState(&buf, 0)
	p.Add(0, 10)
	p.Render(true)
	require.Contains(t, buf.String(), "Objects: 1 | Members: 0 | 10 B")
}
