package script

import (
	"embed"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

//go:embed lua/*.lua
var luaFS embed.FS

// MixinFragment names the shared helper library in error locations.
const MixinFragment = "mixins"

// Operation is one atomic unit of work executed by Redis.
type Operation interface {
	// Name is the logical operation name, e.g. "query".
	Name() string
	// Source is the composed Lua source sent to Redis.
	Source() string
	// Script is the go-redis handle (EVALSHA with EVAL fallback).
	Script() *redis.Script
	// Locate maps a line of the composed source to the fragment that
	// contains it and the line within that fragment.
	Locate(line int) (fragment string, local int)
}

// The four operations logfire runs. They are composed once at init.
var (
	Create = mustLoad("create")
	Query  = mustLoad("query")
	Flush  = mustLoad("flush")
	Clean  = mustLoad("clean")
)

type operation struct {
	name       string
	source     string
	mixinLines int
	script     *redis.Script
}

func (o *operation) Name() string          { return o.name }
func (o *operation) Source() string        { return o.source }
func (o *operation) Script() *redis.Script { return o.script }

func (o *operation) Locate(line int) (string, int) {
	if line <= o.mixinLines {
		return MixinFragment, line
	}
	return o.name, line - o.mixinLines
}

// newOperation composes the mixin library with an operation body.
func newOperation(name, mixins, body string) *operation {
	if !strings.HasSuffix(mixins, "\n") {
		mixins += "\n"
	}
	source := mixins + body
	return &operation{
		name:       name,
		source:     source,
		mixinLines: strings.Count(mixins, "\n"),
		script:     redis.NewScript(source),
	}
}

func mustLoad(name string) Operation {
	mixins, err := luaFS.ReadFile("lua/mixins.lua")
	if err != nil {
		panic(fmt.Sprintf("script: read mixins: %v", err))
	}
	body, err := luaFS.ReadFile("lua/" + name + ".lua")
	if err != nil {
		panic(fmt.Sprintf("script: read %s: %v", name, err))
	}
	return newOperation(name, string(mixins), string(body))
}
