package native

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"sable/internal/ir"
	"sable/internal/value"
)

// SiteKind classifies the reason compiled code handed control back to
// the driver.
type SiteKind int

const (
	SiteReturn SiteKind = iota
	SiteSlow
	SiteHost
	SiteCall
	SiteSpawn
	SiteAwait
)

var siteKindNames = map[SiteKind]string{
	SiteReturn: "return",
	SiteSlow:   "slow",
	SiteHost:   "host",
	SiteCall:   "call",
	SiteSpawn:  "spawn",
	SiteAwait:  "await",
}

func (k SiteKind) String() string { return siteKindNames[k] }

// Site describes one exit point. Instr carries the original operation
// so the driver can service it with the same code the tree walker runs.
type Site struct {
	Kind  SiteKind `json:"kind"`
	Instr ir.Instr `json:"instr"`
}

// CompiledFunc is one function's machine code plus the metadata the
// driver needs to run it. Re-entry index i resumes after site i-1;
// index 0 is the function entry.
type CompiledFunc struct {
	Name    string
	Params  int
	NumRegs int
	Code    []byte
	Consts  []value.Value
	Sites   []Site
}

// Image is a full compiled program, keyed and ordered like the IR
// program it came from.
type Image struct {
	Funcs map[string]*CompiledFunc
	Order []string
}

func (img *Image) Func(name string) (*CompiledFunc, bool) {
	f, ok := img.Funcs[name]
	return f, ok
}

type funcJSON struct {
	Name    string   `json:"name"`
	Params  int      `json:"params"`
	NumRegs int      `json:"num_regs"`
	Code    string   `json:"code"`
	Consts  []string `json:"consts"`
	Sites   []Site   `json:"sites"`
}

type imageJSON struct {
	Funcs []funcJSON `json:"funcs"`
}

// Marshal serializes the image for embedding in a packaged artifact.
func (img *Image) Marshal() ([]byte, error) {
	out := imageJSON{}
	for _, name := range img.Order {
		f := img.Funcs[name]
		consts := make([]string, len(f.Consts))
		for i, c := range f.Consts {
			enc, err := value.Encode(c)
			if err != nil {
				return nil, fmt.Errorf("function %s const %d: %s", name, i, err.Message)
			}
			consts[i] = enc
		}
		out.Funcs = append(out.Funcs, funcJSON{
			Name:    f.Name,
			Params:  f.Params,
			NumRegs: f.NumRegs,
			Code:    base64.StdEncoding.EncodeToString(f.Code),
			Consts:  consts,
			Sites:   f.Sites,
		})
	}
	return json.Marshal(out)
}

// UnmarshalImage restores an image produced by Marshal.
func UnmarshalImage(data []byte) (*Image, error) {
	var in imageJSON
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return nil, fmt.Errorf("decoding native image: %w", err)
	}
	img := &Image{Funcs: map[string]*CompiledFunc{}}
	for _, fj := range in.Funcs {
		code, err := base64.StdEncoding.DecodeString(fj.Code)
		if err != nil {
			return nil, fmt.Errorf("function %s code: %w", fj.Name, err)
		}
		consts := make([]value.Value, len(fj.Consts))
		for i, enc := range fj.Consts {
			v, verr := value.Decode(enc)
			if verr != nil {
				return nil, fmt.Errorf("function %s const %d: %s", fj.Name, i, verr.Message)
			}
			consts[i] = v
		}
		f := &CompiledFunc{
			Name:    fj.Name,
			Params:  fj.Params,
			NumRegs: fj.NumRegs,
			Code:    code,
			Consts:  consts,
			Sites:   fj.Sites,
		}
		img.Funcs[f.Name] = f
		img.Order = append(img.Order, f.Name)
	}
	return img, nil
}
