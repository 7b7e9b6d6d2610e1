package bcts

import (
	"io"
)

type Reader[T any] interface {
	ReadBytes(io.Reader) error
	*T
}
type Writer interface {
	WriteBytes(io.Writer) error
}
