package metadata

import (
	"encoding/json"
	"os"

	"github.com/quasar/pmc/internal/config"
	"github.com/quasar/pmc/internal/events"
	"github.com/quasar/pmc/internal/pmcerr"
)

// maxChainDepth bounds the inheritsFrom walk. A chain longer than this is
// treated the same as a cycle: something is wrong with the descriptor set
// and there is no useful distinction between "very long chain" and "loop"
// from the caller's point of view.
const maxChainDepth = 16

// NeedVersionFunc is asked to make a version's JSON file available on disk
// when LoadChain doesn't find it (or finds one that fails the structural
// check). Returning retry=true tells LoadChain to read the file again;
// returning a non-nil err aborts the chain load with that error.
type NeedVersionFunc func(id string) (retry bool, err error)

// LoadChain walks the inheritsFrom chain starting at rootID, returning the
// descriptors in the order the walk visits them: [rootID, its parent, its
// grandparent, ...]. Each visited descriptor is read from
// ctx.VersionJSONPath(id); if the file is missing or fails a structural
// sanity check, need is invoked so a caller (the Mojang manifest client,
// a mod-loader installer) can materialize it before LoadChain retries.
func LoadChain(ctx *config.Context, rootID string, need NeedVersionFunc, d *events.Dispatcher) ([]*Descriptor, error) {
	var chain []*Descriptor
	visited := map[string]bool{}
	loaded := []string{}

	id := rootID
	for {
		if visited[id] {
			return nil, pmcerr.WithPayload(pmcerr.KindHierarchyLoop, pmcerr.HierarchyLoopPayload{ID: id}, "version hierarchy loop detected")
		}
		if len(chain) >= maxChainDepth {
			return nil, pmcerr.WithPayload(pmcerr.KindHierarchyLoop, pmcerr.HierarchyLoopPayload{ID: id}, "version hierarchy exceeds maximum depth")
		}
		visited[id] = true

		desc, err := readDescriptor(ctx, id, need, d)
		if err != nil {
			return nil, err
		}

		chain = append(chain, desc)
		loaded = append(loaded, id)

		if desc.InheritsFrom == "" {
			break
		}
		id = desc.InheritsFrom
	}

	d.Emit(events.Event{
		Kind: events.KindHierarchyLoad,
		Data: events.HierarchyLoadData{RootID: rootID, LoadedID: loaded},
	})

	return chain, nil
}

func readDescriptor(ctx *config.Context, id string, need NeedVersionFunc, d *events.Dispatcher) (*Descriptor, error) {
	path := ctx.VersionJSONPath(id)

	desc, err := tryReadDescriptor(path)
	if err == nil {
		return desc, nil
	}

	d.Emit(events.Event{
		Kind: events.KindNeedVersion,
		Data: events.NeedVersionData{ID: id, File: path},
	})

	if need == nil {
		if pmcerr.Is(err, pmcerr.KindMalformedDescriptor) {
			return nil, err
		}
		return nil, pmcerr.WithPayload(pmcerr.KindVersionNotFound, pmcerr.VersionNotFoundPayload{ID: id}, "version not found: "+id)
	}

	retry, nerr := need(id)
	if nerr != nil {
		return nil, nerr
	}
	if !retry {
		return nil, pmcerr.WithPayload(pmcerr.KindVersionNotFound, pmcerr.VersionNotFoundPayload{ID: id}, "version not found: "+id)
	}

	desc, err = tryReadDescriptor(path)
	if err != nil {
		if pmcerr.Is(err, pmcerr.KindMalformedDescriptor) {
			return nil, err
		}
		return nil, pmcerr.WithPayload(pmcerr.KindVersionNotFound, pmcerr.VersionNotFoundPayload{ID: id}, "version still not found after retry: "+id)
	}
	return desc, nil
}

func tryReadDescriptor(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var desc Descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, pmcerr.Wrap(pmcerr.KindMalformedDescriptor, err, "malformed version descriptor: "+path)
	}
	if desc.ID == "" {
		return nil, pmcerr.New(pmcerr.KindMalformedDescriptor, "malformed version descriptor: missing id: "+path)
	}
	return &desc, nil
}
