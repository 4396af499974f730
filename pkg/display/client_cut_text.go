package display

import (
	"github.com/go-vgo/robotgo"
	"github.com/rfbengine/server/pkg/rfb/types"
)

func (d *Display) syncToClipboard(ev *types.ClientCutText) { robotgo.WriteAll(ev.Latin1Text()) }
