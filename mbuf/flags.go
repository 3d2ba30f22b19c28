package mbuf

import (
	"fmt"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type flagStringMapping[T ~int32] struct {
	names map[T]string
}

func newFlagStringMapping[T ~int32]() *flagStringMapping[T] {
	return &flagStringMapping[T]{names: make(map[T]string)}
}

func (m *flagStringMapping[T]) Register(flag T, str string) {
	m.names[flag] = str
}

func (m *flagStringMapping[T]) FlagsToString(value T) string {
	if value == 0 {
		return "None"
	}

	flags := maps.Keys(m.names)
	slices.Sort(flags)

	var parts []string
	for _, flag := range flags {
		if value&flag == flag {
			parts = append(parts, m.names[flag])
			value &^= flag
		}
	}

	if value != 0 {
		parts = append(parts, fmt.Sprintf("Unknown(%#x)", int32(value)))
	}

	return strings.Join(parts, "|")
}
