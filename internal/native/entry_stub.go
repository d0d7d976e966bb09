//go:build !(linux && amd64)

package native

import "fmt"

type codePages struct{}

func mapCode(code []byte) (*codePages, entryFunc, error) {
	return nil, nil, fmt.Errorf("native engine requires linux/amd64")
}

func (p *codePages) Close() error { return nil }
