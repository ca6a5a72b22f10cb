package metadata

import "strings"

// Flattened is the result of merging a chain of descriptors into a single
// effective version: scalar fields take the most-derived (child)
// definition, libraries and arguments concatenate parent-first with the
// child's version winning on a coordinate conflict.
type Flattened struct {
	ID                 string
	MainClass          string
	Type               string
	AssetIndex         *AssetIndexRef
	Assets             string
	Downloads          *Downloads
	Logging            *Logging
	JavaVersion        *JavaVersionReq
	Libraries          []Library
	JVMArguments       []ArgumentFragment
	GameArguments      []ArgumentFragment
	MinecraftArguments string
}

// Flatten merges chain, which LoadChain returns in child-first order
// ([requested, parent, grandparent, ...]), into a Flattened descriptor.
func Flatten(chain []*Descriptor) (*Flattened, error) {
	f := &Flattened{}
	if len(chain) == 0 {
		return f, nil
	}
	f.ID = chain[0].ID

	// Scalars: walk child-first and keep the first (most-derived) value
	// seen for each field, since chain[0] is the requested version itself.
	for _, desc := range chain {
		if f.MainClass == "" && desc.MainClass != "" {
			f.MainClass = desc.MainClass
		}
		if f.Type == "" && desc.Type != "" {
			f.Type = desc.Type
		}
		if f.AssetIndex == nil && desc.AssetIndex != nil {
			f.AssetIndex = desc.AssetIndex
		}
		if f.Assets == "" && desc.Assets != "" {
			f.Assets = desc.Assets
		}
		if f.Downloads == nil && desc.Downloads != nil {
			f.Downloads = desc.Downloads
		}
		if f.Logging == nil && desc.Logging != nil {
			f.Logging = desc.Logging
		}
		if f.JavaVersion == nil && desc.JavaVersion != nil {
			f.JavaVersion = desc.JavaVersion
		}
		if f.MinecraftArguments == "" && desc.MinecraftArguments != "" {
			f.MinecraftArguments = desc.MinecraftArguments
		}
	}

	// Libraries and arguments concatenate parent-first, so walk the chain
	// in reverse (grandparent -> parent -> child).
	libByKey := map[string]int{}
	var libs []Library
	for i := len(chain) - 1; i >= 0; i-- {
		for _, lib := range chain[i].Libraries {
			key := libraryKey(lib.Name)
			if idx, ok := libByKey[key]; ok {
				libs[idx] = lib // child's version overrides parent's
				continue
			}
			libByKey[key] = len(libs)
			libs = append(libs, lib)
		}
	}
	f.Libraries = libs

	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i].Arguments == nil {
			continue
		}
		f.JVMArguments = append(f.JVMArguments, chain[i].Arguments.JVM...)
		f.GameArguments = append(f.GameArguments, chain[i].Arguments.Game...)
	}

	return f, nil
}

// libraryKey returns the (group, artifact, classifier) portion of a Maven
// coordinate "group:artifact:version[:classifier]", dropping the version
// so that conflicting versions of the same library dedup against each
// other rather than coexisting.
func libraryKey(name string) string {
	parts := strings.SplitN(name, ":", 4)
	switch len(parts) {
	case 0:
		return name
	case 1:
		return parts[0]
	case 2, 3:
		return parts[0] + ":" + parts[1]
	default:
		return parts[0] + ":" + parts[1] + ":" + parts[3]
	}
}
