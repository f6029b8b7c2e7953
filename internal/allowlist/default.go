package allowlist

// DefaultPatterns is the standard script surface.
// Dynamic code loading, environment and metatable access are always rejected.
var DefaultPatterns = Patterns{
	Modules: []string{
		"json",
		"math",
		"random",
		"re",
		"string",
		"table",
		"time",
	},
	Builtins: []string{
		// base library
		"assert",
		"error",
		"ipairs",
		"next",
		"pairs",
		"pcall",
		"print",
		"require",
		"select",
		"tonumber",
		"tostring",
		"type",
		"unpack",
		"xpcall",
		// helpers
		"abs",
		"all",
		"any",
		"bool",
		"contains",
		"float",
		"int",
		"keys",
		"len",
		"max",
		"min",
		"range",
		"reversed",
		"round",
		"sorted",
		"str",
		"sum",
	},
	ForbiddenBuiltins: []string{
		"_ENV",
		"_G",
		"collectgarbage",
		"dofile",
		"getfenv",
		"getmetatable",
		"load",
		"loadfile",
		"loadstring",
		"module",
		"newproxy",
		"rawequal",
		"rawget",
		"rawlen",
		"rawset",
		"setfenv",
		"setmetatable",
	},
	ForbiddenModules: []string{
		"channel",
		"coroutine",
		"debug",
		"io",
		"os",
		"package",
	},
	ForbiddenAttributes: []string{
		"__*",
		"dump",
		"loaders",
		"loadlib",
		"preload",
		"searchpath",
	},
}
