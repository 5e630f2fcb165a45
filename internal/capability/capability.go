// Package capability implements the capability probe: enumerate sink and
// decoder element factories filtered by media type and report which of a
// caller-supplied property list some matching factory exposes. Probing
// escalates from cheap to expensive — class property listing first, a
// plugin-feature load and retry second, full element instantiation last —
// against an injected FactoryRegistry collaborator.
package capability

// FactoryKind mirrors GST_ELEMENT_FACTORY_TYPE_{SINK,DECODER}; probes
// always request both together.
type FactoryKind uint8

const (
	FactorySink FactoryKind = 1 << iota
	FactoryDecoder
)

// MediaSourceType narrows the factory list further, mirroring
// GST_ELEMENT_FACTORY_TYPE_MEDIA_{AUDIO,VIDEO,SUBTITLE}.
type MediaSourceType uint8

const (
	MediaUnknown MediaSourceType = iota
	MediaAudio
	MediaVideo
	MediaSubtitle
)

// Factory is one element factory as the probe sees it: first try the cheap
// class-only path; if that fails the probe calls Load then Properties
// again; if that still fails it calls Instantiate.
type Factory struct {
	Name       string
	MediaTypes []MediaSourceType

	// ClassProperties returns the factory's exposed property names without
	// instantiating an element (get-element-type + class-list-properties),
	// or nil if the class type couldn't be resolved cheaply.
	ClassProperties func() []string
	// Load performs gst_plugin_feature_load and reports whether it
	// succeeded; once it has, ClassProperties is retried.
	Load func() bool
	// InstantiateProperties instantiates a real element and lists its
	// object properties — the most expensive, last-resort path.
	InstantiateProperties func() []string
}

// FactoryRegistry is the injected collaborator enumerating available
// factories; the real element registry stays outside this core.
type FactoryRegistry interface {
	ListFactories(kind FactoryKind, mediaType MediaSourceType) []Factory
}

// Probe enumerates kind/mediaType factories from registry and returns the
// subset of props exposed by at least one matching factory, trying, in
// order: (1) class properties, (2) plugin-feature-load then retry (1),
// (3) instantiate and list object properties.
func Probe(registry FactoryRegistry, kind FactoryKind, mediaType MediaSourceType, props []string) []string {
	remaining := make(map[string]struct{}, len(props))
	for _, p := range props {
		remaining[p] = struct{}{}
	}
	var found []string

	for _, f := range registry.ListFactories(kind, mediaType) {
		if len(remaining) == 0 {
			break
		}
		names := probeOne(f)
		for _, n := range names {
			if _, want := remaining[n]; want {
				found = append(found, n)
				delete(remaining, n)
			}
		}
	}
	return found
}

func probeOne(f Factory) []string {
	if f.ClassProperties != nil {
		if names := f.ClassProperties(); len(names) > 0 {
			return names
		}
	}
	if f.Load != nil && f.Load() && f.ClassProperties != nil {
		if names := f.ClassProperties(); len(names) > 0 {
			return names
		}
	}
	if f.InstantiateProperties != nil {
		return f.InstantiateProperties()
	}
	return nil
}
