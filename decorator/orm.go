package decorator

import (
	"reflect"

	"github.com/devopsext/asynctrace/tracer"
)

const TagEntityName = "orm.entity"

// Entity is what ORM instrumentation hands to decorators: the operation
// and the entity it applies to, which may be nil.
type Entity struct {
	Operation string
	Value     interface{}
}

// EntityNamer yields a display name for an entity, or "" when it has none.
type EntityNamer func(entity interface{}) string

// TypeName names an entity after its type, e.g. "Order" for *Order.
func TypeName(entity interface{}) string {

	if entity == nil {
		return ""
	}
	t := reflect.TypeOf(entity)
	for t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	return t.Name()
}

// EntityDecorator names ORM spans after the entity they touch. An entity
// without a name never replaces a name already on the span.
type EntityDecorator struct {
	Component string
	Name      EntityNamer
}

func (d EntityDecorator) Decorate(span *tracer.Span, object interface{}) {

	e, ok := object.(Entity)
	if !ok {
		return
	}
	if d.Component != "" {
		span.SetTag(TagComponent, d.Component)
	}

	namer := d.Name
	if namer == nil {
		namer = TypeName
	}
	name := ""
	if e.Value != nil {
		name = namer(e.Value)
	}
	if name == "" {
		return
	}
	span.SetTag(TagEntityName, name)
	span.DecorateResourceName(name)
}
