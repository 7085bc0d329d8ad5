// Package color prints operator output with a stable color per key, so lines
// about the same board line up visually across a long run.
package color

import (
	"fmt"
	"hash/fnv"
	"io"

	"github.com/fatih/color"
)

var palette = []*color.Color{
	color.New(color.FgHiRed),
	color.New(color.FgHiGreen),
	color.New(color.FgHiYellow),
	color.New(color.FgHiBlue),
	color.New(color.FgHiMagenta),
	color.New(color.FgHiCyan),
	color.New(color.FgRed),
	color.New(color.FgGreen),
	color.New(color.FgYellow),
	color.New(color.FgBlue),
	color.New(color.FgMagenta),
	color.New(color.FgCyan),
}

var (
	success = color.New(color.FgGreen)
	failure = color.New(color.FgRed, color.Bold)
)

// ForKey returns the same palette entry for the same key.
func ForKey(key string) *color.Color {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return palette[h.Sum32()%uint32(len(palette))]
}

// Prefix formats key as a colored "[key]".
func Prefix(key string) string {
	return ForKey(key).Sprintf("[%s]", key)
}

func Successf(w io.Writer, key, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", Prefix(key), success.Sprintf(format, args...))
}

func Failuref(w io.Writer, key, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", Prefix(key), failure.Sprintf(format, args...))
}
