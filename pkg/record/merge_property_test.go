package record

import (
	"bytes"
	"fmt"
	"reflect"
	"testing"

	"github.com/fedora-flatpak/flathub-filter/pkg/model"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var (
	inclusions           = []interface{}{model.IncludeUnset, model.IncludeYes, model.IncludeNo}
	reflectComponentType = reflect.TypeOf(model.Component{})
)

// genComponents generates up to 8 components with ids drawn from a small pool, so that
// independently generated sets overlap.
func genComponents() gopter.Gen {
	return gen.SliceOfN(8, gen.Struct(reflectComponentType, map[string]gopter.Gen{
		"ID":            gen.IntRange(0, 11).Map(func(i int) string { return fmt.Sprintf("org.example.App%d", i) }),
		"DownloadCount": gen.Int64Range(0, 100000),
		"Comments":      gen.OneConstOf("", "ok", "needs review"),
		"Include":       gen.OneConstOf(inclusions...),
	})).Map(func(list []model.Component) model.Components {
		out := make(model.Components, len(list))
		for i := range list {
			c := list[i]
			out[c.ID] = &c
		}
		return out
	})
}

func clone(in model.Components) model.Components {
	out := make(model.Components, len(in))
	for id, c := range in {
		cc := *c
		out[id] = &cc
	}
	return out
}

func render(cs model.Components) string {
	var buf bytes.Buffer
	list := make([]*model.Component, 0, len(cs))
	for _, id := range cs.IDs() {
		list = append(list, cs[id])
	}
	_ = Dump(&buf, list)
	return buf.String()
}

func TestEditorialMergeProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("an empty delta leaves the target unchanged", prop.ForAll(
		func(base, last model.Components) bool {
			target := clone(last)
			EditorialDiff(base, clone(base)).Apply(target)
			return render(target) == render(last)
		},
		genComponents(), genComponents(),
	))

	properties.Property("applying a delta twice is the same as applying it once", prop.ForAll(
		func(base, current, last model.Components) bool {
			delta := EditorialDiff(base, current)
			once := clone(last)
			delta.Apply(once)
			twice := clone(once)
			delta.Apply(twice)
			return render(once) == render(twice)
		},
		genComponents(), genComponents(), genComponents(),
	))

	properties.Property("edited fields take the edited value, other fields keep the target's", prop.ForAll(
		func(base, current, last model.Components) bool {
			target := clone(last)
			EditorialDiff(base, current).Apply(target)
			for id, c := range target {
				cur, inCurrent := current[id]
				old, inBase := base[id]
				for _, field := range model.EditorialFields {
					var want string
					switch {
					case inCurrent && (!inBase && cur.Editorial(field) != "" || inBase && cur.Editorial(field) != old.Editorial(field)):
						want = cur.Editorial(field)
					default:
						want = last[id].Editorial(field)
					}
					if c.Editorial(field) != want {
						return false
					}
				}
				// statistical fields are never touched
				if c.DownloadCount != last[id].DownloadCount {
					return false
				}
			}
			return true
		},
		genComponents(), genComponents(), genComponents(),
	))

	properties.Property("rendering is stable through a parse round trip", prop.ForAll(
		func(cs model.Components) bool {
			parsed := make(model.Components)
			if err := Parse(bytes.NewBufferString(render(cs)), "gen.txt", parsed); err != nil {
				return false
			}
			return render(parsed) == render(cs)
		},
		genComponents(),
	))

	properties.TestingRun(t)
}
