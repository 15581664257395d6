// Package registry registers the concrete types stored behind interfaces in
// the database and in workload fixtures. Import it for its side effects
// before encoding or decoding any of them.
package registry

import (
	"reflect"
	"sync"

	"github.com/antiyro/starkroot/core"
	"github.com/antiyro/starkroot/encoder"
)

var once sync.Once

//nolint:gochecknoinits
func init() {
	once.Do(func() {
		types := []reflect.Type{
			reflect.TypeOf(core.DeclareTransaction{}),
			reflect.TypeOf(core.DeployTransaction{}),
			reflect.TypeOf(core.InvokeTransaction{}),
			reflect.TypeOf(core.Cairo0Class{}),
			reflect.TypeOf(core.Cairo1Class{}),
		}

		for _, t := range types {
			if err := encoder.RegisterType(t); err != nil {
				panic(err)
			}
		}
	})
}
