package main

import "github.com/tryteex/tiny-web-sub001/action"

// Engine is the process-wide Action Engine (spec §4.G). An embedding
// program registers its (module, class, action) handlers against this
// Engine in an init() function, the way a Caddy module registers
// itself at import time, before calling main's command tree.
var Engine = action.NewEngine()
