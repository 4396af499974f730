// Package cli wires the standalone rfbd command's flags to pkg/config and
// pkg/host, leaving pkg/display to supply the actual screen-capture/input
// EventSink the host drives.
package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rfbengine/server/pkg/config"
	"github.com/rfbengine/server/pkg/display"
	"github.com/rfbengine/server/pkg/host"
	"github.com/rfbengine/server/pkg/internal/log"
)

var (
	flagPort            uint16
	flagInterface       string
	flagDesktopName     string
	flagPassword        string
	flagMaxClients      int
	flagProvider        string
	flagProtocolVersion string
	flagWidth           int
	flagHeight          int
	flagCaptureFPS      int
	flagDebug           bool
)

// RootCmd is the rfbd entry point: start the server against a local
// display provider and block until interrupted.
var RootCmd = &cobra.Command{
	Use:   "rfbd",
	Short: "Serve the local display over RFB/VNC",
	RunE:  runServe,
}

func init() {
	flags := RootCmd.Flags()
	flags.Uint16Var(&flagPort, "port", 5900, "TCP port to listen on")
	flags.StringVar(&flagInterface, "interface", "", "bind address (empty binds all interfaces)")
	flags.StringVar(&flagDesktopName, "name", "", "desktop name advertised to clients")
	flags.StringVar(&flagPassword, "password", "", "VncAuth password (empty disables authentication)")
	flags.IntVar(&flagMaxClients, "max-clients", 0, "maximum concurrent clients (0 = unlimited)")
	flags.StringVar(&flagProvider, "provider", "screencap", "display provider: screencap or gstreamer")
	flags.StringVar(&flagProtocolVersion, "protocol-version", "3.8", "RFB protocol version to advertise: 3.3, 3.7, or 3.8")
	flags.IntVar(&flagWidth, "width", 1280, "framebuffer width")
	flags.IntVar(&flagHeight, "height", 720, "framebuffer height")
	flags.IntVar(&flagCaptureFPS, "capture-fps", 5, "display provider capture rate")
	flags.BoolVar(&flagDebug, "debug", false, "enable verbose logging")
}

func runServe(cmd *cobra.Command, args []string) error {
	config.Debug = flagDebug

	cfg := config.ServerConfig{
		Port:            flagPort,
		Interface:       flagInterface,
		DesktopName:     flagDesktopName,
		Password:        flagPassword,
		MaxClients:      flagMaxClients,
		Provider:        flagProvider,
		ProtocolVersion: flagProtocolVersion,
		Width:           flagWidth,
		Height:          flagHeight,
		CaptureFPS:      flagCaptureFPS,
	}.WithDefaults()

	h := host.New()
	h.NewFramebuffer(cfg.Width, cfg.Height, cfg.DesktopName)

	d, err := display.New(display.Opts{
		Host:     h,
		Provider: cfg.Provider,
		Width:    cfg.Width,
		Height:   cfg.Height,
		FPS:      cfg.CaptureFPS,
	})
	if err != nil {
		return err
	}
	if err := d.Start(); err != nil {
		return fmt.Errorf("starting display provider: %w", err)
	}
	defer d.Close()

	if err := h.StartServer(cfg, d); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	defer h.StopServer()

	log.Infof("rfbd listening on %s", cfg.Interface+":"+fmt.Sprint(cfg.Port))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	return nil
}
