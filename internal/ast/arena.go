package ast

import (
	"fmt"

	"fortio.org/safecast"
)

// Arena stores nodes of one kind; handles are 1-based so that 0 means "none".
// Data is exported for msgpack dumps and must not be appended to directly.
type Arena[T any] struct {
	Data []T `msgpack:"data"`
}

func NewArena[T any](capHint uint) *Arena[T] {
	return &Arena[T]{
		Data: make([]T, 0, capHint),
	}
}

// Allocate возвращает индекс нового элемента (1-based).
func (a *Arena[T]) Allocate(value T) uint32 {
	a.Data = append(a.Data, value)
	n, err := safecast.Conv[uint32](len(a.Data))
	if err != nil {
		panic(fmt.Errorf("arena overflow: %w", err))
	}
	return n
}

func (a *Arena[T]) Get(index uint32) *T {
	if index == 0 || int(index) > len(a.Data) {
		return nil
	}
	return &a.Data[index-1]
}

func (a *Arena[T]) Len() uint32 {
	return uint32(len(a.Data)) // #nosec G115 -- bounded by Allocate
}
