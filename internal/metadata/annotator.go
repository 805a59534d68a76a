package metadata

import "context"

// ClassKey is the type-discriminator key injected into nested JSON objects.
const ClassKey = "@class"

// Annotator tags a parsed payload with type discriminators so that path
// extraction can disambiguate nested structures. All work is best-effort; the
// annotator never fails.
type Annotator struct {
	engine *Engine
}

// NewAnnotator constructs an annotator over the resolve engine.
func NewAnnotator(engine *Engine) *Annotator {
	return &Annotator{engine: engine}
}

// Annotate sets @class on the root when absent, walks the root class's field
// definitions tagging nested objects and collection elements, then infers
// @class for any remaining untagged nested maps whose capitalized key name
// resolves to a known class.
func (a *Annotator) Annotate(ctx context.Context, root map[string]any, rootClass string) {
	if a == nil || root == nil || rootClass == "" {
		return
	}
	if _, ok := root[ClassKey]; !ok {
		root[ClassKey] = rootClass
	}
	a.annotateByClass(ctx, root, rootClass, map[string]struct{}{})
	a.inferRemaining(ctx, root)
}

func (a *Annotator) annotateByClass(ctx context.Context, obj map[string]any, class string, seen map[string]struct{}) {
	if _, dup := seen[class]; dup {
		return
	}
	seen[class] = struct{}{}

	def, ok := a.engine.LoadDefinition(ctx, class)
	if !ok {
		return
	}
	for _, fd := range def.Fields {
		value, present := obj[fd.Name]
		if !present || value == nil {
			continue
		}
		switch typed := value.(type) {
		case map[string]any:
			if fd.ClassName != "" {
				a.tag(ctx, typed, fd.ClassName, seen)
				continue
			}
			if fd.ElementClass != "" {
				// Map container: elements are the values.
				for _, element := range typed {
					if elementMap, isMap := element.(map[string]any); isMap {
						a.tag(ctx, elementMap, fd.ElementClass, seen)
					}
				}
			}
		case []any:
			if fd.ElementClass == "" {
				continue
			}
			for _, element := range typed {
				if elementMap, isMap := element.(map[string]any); isMap {
					a.tag(ctx, elementMap, fd.ElementClass, seen)
				}
			}
		}
	}
}

// tag sets @class when absent and recurses into the tagged object. Element
// class names are looked up capitalized, matching how element classes are
// declared against lower-cased field names.
func (a *Annotator) tag(ctx context.Context, obj map[string]any, class string, seen map[string]struct{}) {
	if _, ok := obj[ClassKey]; !ok {
		obj[ClassKey] = class
	}
	a.annotateByClass(ctx, obj, capitalize(class), seen)
}

// inferRemaining tags nested maps that the field definitions missed, when the
// capitalized key name resolves to a known class.
func (a *Annotator) inferRemaining(ctx context.Context, obj map[string]any) {
	for key, value := range obj {
		nested, isMap := value.(map[string]any)
		if !isMap || key == ClassKey {
			continue
		}
		if _, tagged := nested[ClassKey]; !tagged {
			candidate := capitalize(key)
			if _, known := a.engine.LoadDefinition(ctx, candidate); known {
				nested[ClassKey] = candidate
			}
		}
		a.inferRemaining(ctx, nested)
	}
}
