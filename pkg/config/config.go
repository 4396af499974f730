// Package config holds process-wide toggles and the typed server
// configuration recognized at startup, as referenced by the display
// provider layer (which gates verbose Gstreamer bus logging on Debug) and
// by the CLI/host boundary (which populates ServerConfig).
package config

// Debug enables verbose logging across the engine. Mirrors the teacher's
// package-level toggle consumed by pkg/display/providers and
// pkg/internal/log.
var Debug bool

// ServerConfig is the configuration recognized at server start, per the
// external-interfaces contract: port, bind interface, desktop name,
// password, and a client cap.
type ServerConfig struct {
	// Port to listen on; 0 selects an OS-assigned port.
	Port uint16
	// Interface to bind; binds all interfaces if empty.
	Interface string
	// DesktopName is advertised in ServerInit.
	DesktopName string
	// Password enables VncAuth when non-empty; only the first 8 bytes are
	// significant. Empty disables VncAuth (security type None only).
	Password string
	// MaxClients caps concurrent sessions; 0 means unlimited.
	MaxClients int
	// Provider selects the default display provider used by the
	// standalone command (not part of the core engine).
	Provider string
	// ProtocolVersion is the RFB version the server advertises in
	// AwaitVersion: "3.3", "3.7", or "3.8". Empty selects "3.8".
	ProtocolVersion string
	// Width and Height size the initial framebuffer.
	Width, Height int
	// CaptureFPS caps how often the display provider pulls a fresh frame
	// from the screen; the providers that poll (screencap) or negotiate a
	// pipeline rate (gstreamer) both read this instead of a hardcoded rate.
	CaptureFPS int
}

// WithDefaults fills zero-valued fields with the engine's defaults.
func (c ServerConfig) WithDefaults() ServerConfig {
	if c.DesktopName == "" {
		c.DesktopName = "rfbengine"
	}
	if c.Provider == "" {
		c.Provider = "screencap"
	}
	if c.ProtocolVersion == "" {
		c.ProtocolVersion = "3.8"
	}
	if c.Width == 0 {
		c.Width = 1280
	}
	if c.Height == 0 {
		c.Height = 720
	}
	if c.CaptureFPS == 0 {
		c.CaptureFPS = 5
	}
	return c
}
