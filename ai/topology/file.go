package topology

import (
	"context"
	"path/filepath"

	"github.com/hrygo/voxcache/ai/configloader"
)

// File reads the topology from a YAML document:
//
//	areas:
//	  - {id: kitchen, name: Küche}
//	entities:
//	  - {entity_id: light.kitchen_ceiling, name: Deckenlampe, area_id: kitchen}
//
// The file is re-read on every Snapshot.
type File struct {
	loader *configloader.Loader
	name   string
}

// NewFile creates a provider for the YAML file at path.
func NewFile(path string) *File {
	return &File{
		loader: configloader.NewLoader(filepath.Dir(path)),
		name:   filepath.Base(path),
	}
}

func (f *File) Snapshot(context.Context) (*Snapshot, error) {
	var s Snapshot
	if err := f.loader.Load(f.name, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
