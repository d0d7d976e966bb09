//go:build linux && amd64

package native

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// codePages is one function's executable mapping. The entry uintptr
// holds the code address; a pointer to it reinterpreted as a func value
// matches the Go func representation, so the driver can call generated
// code directly. The pages stay referenced by the engine for as long as
// the func value is callable.
type codePages struct {
	mem   []byte
	entry uintptr
}

func mapCode(code []byte) (*codePages, entryFunc, error) {
	if len(code) == 0 {
		return nil, nil, fmt.Errorf("empty code")
	}
	size := (len(code) + os.Getpagesize() - 1) &^ (os.Getpagesize() - 1)
	mem, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, nil, fmt.Errorf("mapping code pages: %w", err)
	}
	copy(mem, code)
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		unix.Munmap(mem)
		return nil, nil, fmt.Errorf("marking code executable: %w", err)
	}
	p := &codePages{mem: mem}
	p.entry = uintptr(unsafe.Pointer(&p.mem[0]))
	entryPtr := &p.entry
	fn := *(*entryFunc)(unsafe.Pointer(&entryPtr))
	return p, fn, nil
}

func (p *codePages) Close() error {
	if p.mem == nil {
		return nil
	}
	err := unix.Munmap(p.mem)
	p.mem = nil
	return err
}
