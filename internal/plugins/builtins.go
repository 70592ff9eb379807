package plugins

import (
	"diplomat/internal/plugin"
	"diplomat/internal/plugins/decidio"
	"diplomat/internal/plugins/diversity"
	"diplomat/internal/plugins/mention"
	"diplomat/internal/plugins/overspeaking"
	"diplomat/internal/plugins/silence"
	"diplomat/internal/plugins/summarizer"
	"diplomat/internal/plugins/timer"
	"diplomat/internal/plugins/underspeaking"
)

// RegisterBuiltins installs all of the built-in plugin factories into
// the provided registry.
func RegisterBuiltins(reg *plugin.Registry) {
	if reg == nil {
		return
	}
	overspeaking.Register(reg)
	underspeaking.Register(reg)
	timer.Register(reg)
	mention.Register(reg)
	summarizer.Register(reg)
	diversity.Register(reg)
	silence.Register(reg)
	decidio.Register(reg)
}
