package persist

import (
	"github.com/livetemplate/composer/internal/block"
	"github.com/livetemplate/composer/internal/registry"
	"github.com/livetemplate/composer/internal/section"
)

// SectionSchema resolves a template key to its section list through the
// registry. Unknown template keys get every section, enabled.
type SectionSchema struct {
	Registry *registry.Registry
}

func (s SectionSchema) Defaults(key string) section.State {
	return s.Registry.Lookup(key).Schema().Defaults()
}

func (s SectionSchema) Sanitize(key string, st section.State) section.State {
	return s.Registry.Lookup(key).Schema().Sanitize(st)
}

// BlockSchema repairs stored block collections. New workspaces start from
// Starter, or empty when it is nil.
type BlockSchema struct {
	Starter func() []block.Block
}

func (s BlockSchema) Defaults(string) []block.Block {
	if s.Starter == nil {
		return []block.Block{}
	}
	return s.Starter()
}

func (s BlockSchema) Sanitize(_ string, blocks []block.Block) []block.Block {
	return block.Validate(blocks)
}
