package manifest

import (
	"log/slog"

	"git.home.luguber.info/inful/metadeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/metadeploy/internal/logfields"
	"git.home.luguber.info/inful/metadeploy/internal/metadata"
	"git.home.luguber.info/inful/metadeploy/internal/util/sets"
)

// Builder groups classified paths into manifests.
type Builder struct {
	classifier *metadata.Classifier
	onDrop     func(error)
}

// Option configures a Builder.
type Option func(*Builder)

// WithDropHandler registers fn to receive the classification warning or
// policy violation of every dropped path.
func WithDropHandler(fn func(error)) Option {
	return func(b *Builder) { b.onDrop = fn }
}

// NewBuilder creates a Builder.
func NewBuilder(classifier *metadata.Classifier, opts ...Option) *Builder {
	b := &Builder{classifier: classifier}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build classifies paths and groups the valid ones by type in first-seen
// order. Unknown extensions are dropped with a classification warning;
// non-destructible items are dropped from destructive manifests with a policy
// warning. Companion descriptors are silently left out. The returned items are
// exactly the ones the manifest lists, one per distinct path.
func (b *Builder) Build(paths []string, destructive bool) (*Manifest, []metadata.Item) {
	m := New(b.classifier.APIVersion(), destructive)
	var items []metadata.Item

	seenPaths := sets.New[string]()
	typeIndex := map[string]int{}
	members := map[string]*sets.Ordered[string]{}

	for _, p := range paths {
		item := b.classifier.Classify(p)
		if seenPaths.Has(item.Path) {
			continue
		}
		seenPaths.Add(item.Path)

		if !item.Valid {
			if !item.IsCompanion() {
				b.drop(errors.ClassificationWarning("unknown metadata extension").
					WithContext("path", item.Path).
					WithContext("extension", item.Extension).
					Build())
			}
			continue
		}
		if destructive && !item.Destructible {
			b.drop(errors.PolicyViolation("metadata type cannot be deleted through the API").
				WithContext("path", item.Path).
				WithContext("metadata_type", item.Type).
				Build())
			continue
		}

		idx, ok := typeIndex[item.Type]
		if !ok {
			idx = len(m.Types)
			typeIndex[item.Type] = idx
			m.Types = append(m.Types, TypeMembers{Name: item.Type})
			members[item.Type] = &sets.Ordered[string]{}
		}
		if members[item.Type].Add(item.Member) {
			m.Types[idx].Members = append(m.Types[idx].Members, item.Member)
		}
		items = append(items, item)
	}
	return m, items
}

func (b *Builder) drop(err *errors.ClassifiedError) {
	path, _ := err.Context().GetString("path")
	slog.Warn("Dropping path from manifest",
		logfields.Path(path),
		logfields.Reason(err.Message()),
		slog.String("category", string(err.Category())))
	if b.onDrop != nil {
		b.onDrop(err)
	}
}
