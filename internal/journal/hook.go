package journal

import (
	"github.com/star/wwtengine/internal/control"
	"github.com/star/wwtengine/internal/script"
)

// Hook returns an init hook that journals every control's lifecycle and
// navigation events.
func (j *Journal) Hook() control.InitHook {
	return func(c *control.Control) {
		record := func(kind string, ra, dec, zoom float64) {
			j.Record(Event{
				Kind:      kind,
				SurfaceID: c.SurfaceID(),
				RA:        ra,
				Dec:       dec,
				Zoom:      zoom,
				SimTime:   c.SpaceTime().Now(),
			})
		}

		v := c.View()
		record("init", v.RA, v.Dec, v.Zoom)

		si := c.ScriptInterface()
		si.AddArrived(func(_ *script.Interface, a script.ArrivedEventArgs) {
			record("arrived", a.RA(), a.Dec(), a.Zoom())
		})
		si.AddReady(func(*script.Interface) {
			v := c.View()
			record("ready", v.RA, v.Dec, v.Zoom)
		})
	}
}
