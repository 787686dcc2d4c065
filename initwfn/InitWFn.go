// Package initwfn names the Gorgonia weight initializers that network
// weights can be created with, so that they can be selected in
// configuration files.
package initwfn

import (
	"fmt"
	"sort"
	"strings"

	G "gorgonia.org/gorgonia"
)

// Type describes different types of InitWFn that are available
type Type string

// Available InitWFn types
const (
	GlorotU Type = "GlorotU"
	GlorotN Type = "GlorotN"
	HeU     Type = "HeU"
	HeN     Type = "HeN"
	Zeroes  Type = "Zeroes"
)

// creators maps each Type to the Gorgonia InitWFn it describes. The
// gain is ignored by Zeroes.
var creators = map[Type]func(gain float64) G.InitWFn{
	GlorotU: func(gain float64) G.InitWFn { return G.GlorotU(gain) },
	GlorotN: func(gain float64) G.InitWFn { return G.GlorotN(gain) },
	HeU:     func(gain float64) G.InitWFn { return G.HeU(gain) },
	HeN:     func(gain float64) G.InitWFn { return G.HeN(gain) },
	Zeroes:  func(float64) G.InitWFn { return G.Zeroes() },
}

// aliases maps normalized configuration names to Types
var aliases = map[string]Type{
	"":        GlorotU,
	"glorotu": GlorotU,
	"glorotn": GlorotN,
	"heu":     HeU,
	"hen":     HeN,
	"zeroes":  Zeroes,
	"zeros":   Zeroes,
}

// InitWFn is a Gorgonia InitWFn together with the Type and gain that
// created it
type InitWFn struct {
	Type
	Gain float64

	initWFn G.InitWFn
}

// New returns the InitWFn of Type t with the given gain
func New(t Type, gain float64) (*InitWFn, error) {
	create, ok := creators[t]
	if !ok {
		return nil, fmt.Errorf("new: unknown weight initializer type %q", t)
	}
	return &InitWFn{Type: t, Gain: gain, initWFn: create(gain)}, nil
}

// Parse returns the InitWFn with the given name and gain. Names are
// case insensitive and may be written with underscores, for example
// "glorot_u". The empty name selects GlorotU.
func Parse(name string, gain float64) (*InitWFn, error) {
	t, ok := aliases[strings.ToLower(strings.ReplaceAll(name, "_", ""))]
	if !ok {
		return nil, fmt.Errorf("parse: unknown weight initializer %q"+
			"\n\twant one of %v", name, Names())
	}
	return New(t, gain)
}

// Names returns the configuration names of all initializers
func Names() []string {
	names := make([]string, 0, len(creators))
	for t := range creators {
		names = append(names, strings.ToLower(string(t)))
	}
	sort.Strings(names)
	return names
}

// InitWFn returns the wrapped Gorgonia InitWFn
func (w *InitWFn) InitWFn() G.InitWFn {
	return w.initWFn
}

// String implements the fmt.Stringer interface
func (w *InitWFn) String() string {
	if w.Type == Zeroes {
		return string(w.Type)
	}
	return fmt.Sprintf("%v(gain=%v)", w.Type, w.Gain)
}
