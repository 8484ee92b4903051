package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
)

// Monitor represents a physical output driven by an active CRTC.
type Monitor struct {
	Index  int
	Name   string
	X      int
	Y      int
	Width  int
	Height int
}

// GetMonitors retrieves all active monitors using XRandR.
func (c *Connection) GetMonitors() ([]Monitor, error) {
	resources, err := randr.GetScreenResources(c.XUtil.Conn(), c.Root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}

	var monitors []Monitor
	for i, crtc := range resources.Crtcs {
		crtcInfo, err := randr.GetCrtcInfo(c.XUtil.Conn(), crtc, resources.ConfigTimestamp).Reply()
		if err != nil {
			continue
		}

		// Disabled CRTCs report zero size or no outputs.
		if crtcInfo.Width == 0 || crtcInfo.Height == 0 || len(crtcInfo.Outputs) == 0 {
			continue
		}

		monitors = append(monitors, Monitor{
			Index:  i,
			Name:   c.outputName(crtcInfo.Outputs[0], resources.ConfigTimestamp, i),
			X:      int(crtcInfo.X),
			Y:      int(crtcInfo.Y),
			Width:  int(crtcInfo.Width),
			Height: int(crtcInfo.Height),
		})
	}

	return monitors, nil
}

// outputName returns the RandR output name (e.g. "HDMI-1"). Output names
// survive CRTC reassignment when monitors are plugged or unplugged, so they
// are used as display identifiers.
func (c *Connection) outputName(output randr.Output, ts xproto.Timestamp, index int) string {
	info, err := randr.GetOutputInfo(c.XUtil.Conn(), output, ts).Reply()
	if err != nil || len(info.Name) == 0 {
		return fmt.Sprintf("Monitor%d", index)
	}
	return string(info.Name)
}
