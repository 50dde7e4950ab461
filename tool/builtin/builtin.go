package builtin

import (
	"gorm.io/gorm"

	"github.com/helmsman-ai/helmsman/sandbox"
	"github.com/helmsman-ai/helmsman/tool"
)

// Deps carries the collaborators the stock tools are wired to.
type Deps struct {
	DB        *gorm.DB
	Sandboxes *sandbox.Manager
	Wolfram   WolframConfig
	Tavily    TavilyConfig
	Image     ImageConfig
}

// RegisterAll registers every stock tool factory on the registry.
func RegisterAll(r *tool.Registry, deps Deps) {
	RegisterControl(r, deps.Sandboxes)
	RegisterGeneric(r)
	RegisterCoding(r, deps.Sandboxes)
	RegisterMath(r, deps.Wolfram)
	RegisterWebSearch(r, deps.Tavily)
	RegisterImage(r, deps.Image)
	RegisterScheduling(r, deps.DB)
}
