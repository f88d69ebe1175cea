package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"github.com/spf13/cobra"

	"region-snip/src/config"
	"region-snip/src/eventloop"
	"region-snip/src/gui"
	"region-snip/src/logutil"
	"region-snip/src/messages"
	"region-snip/src/overlay"
	"region-snip/src/singleinstance"
	"region-snip/src/tray"
)

type mainOptions struct {
	selectNow bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return runWithArgs(normalizeLegacyArgs(os.Args))
}

func runWithArgs(args []string) error {
	if len(args) == 0 {
		args = []string{"region-snip"}
	}

	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "region-snip",
		Short:         "Capture a screen region and save it as a PNG",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithOptions(*opts)
		},
	}

	cmd.Flags().BoolVar(&opts.selectNow, "select", false, "Open region selection immediately (delegates to a running instance if one exists)")

	return cmd
}

// normalizeLegacyArgs maps single-dash long flags (-select) to the
// double-dash form so both spellings keep working.
func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}

	normalized := make([]string, len(args))
	copy(normalized, args)

	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		if !strings.HasPrefix(arg, "-") || strings.HasPrefix(arg, "--") {
			continue
		}
		name := strings.TrimPrefix(arg, "-")
		if eq := strings.Index(name, "="); eq >= 0 {
			name = name[:eq]
		}
		if len(name) > 1 {
			normalized[i] = "-" + arg
		}
	}

	return normalized
}

// selectDelegator hands a selection request to a resident instance.
type selectDelegator interface {
	TrySelect(ctx context.Context) (delegated bool, err error)
}

// handleSelectWithDelegation asks a resident instance to open region
// selection; fallback runs when no resident answers.
func handleSelectWithDelegation(client selectDelegator, fallback func()) {
	delegated, err := client.TrySelect(context.Background())
	if err != nil {
		log.Printf("Delegation error: %v; starting standalone", err)
		fallback()
		return
	}
	if delegated {
		log.Printf("Delegated selection to the resident instance")
		return
	}
	log.Printf("No resident instance detected, starting standalone")
	fallback()
}

func runWithOptions(opts mainOptions) error {
	enableDPIAwareness()

	// Keep the main goroutine on its own OS thread; the GUI toolkit owns it.
	runtime.LockOSThread()

	// Load .env early so REGION_SNIP_PORT_* are applied before the
	// delegation scan and the pre-flight check.
	_, _ = config.Load()

	if opts.selectNow {
		delegated := true
		handleSelectWithDelegation(singleinstance.NewClient(), func() { delegated = false })
		if delegated {
			return nil
		}
	}

	// Pre-flight: the start port doubles as the single-instance lock. When
	// it is busy a resident already runs, so hand it the selection request
	// instead of starting a second copy.
	startPort, _ := singleinstance.PortRange()
	addr := fmt.Sprintf("127.0.0.1:%d", startPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		residentPort := startPort
		if p, found := singleinstance.DetectResidentPort(context.Background()); found {
			residentPort = p
		}
		log.Printf("Pre-flight: port %d busy, delegating to the resident on port %d", startPort, residentPort)
		handleSelectWithDelegation(singleinstance.NewClient(), func() {
			fmt.Printf("region-snip is already running on port %d\n", residentPort)
		})
		return nil
	}
	// We claimed the port; release it so the event loop server can re-bind.
	_ = listener.Close()
	log.Printf("Pre-flight: port %d free, we are the resident", startPort)

	return runResident(opts.selectNow)
}

func runResident(selectOnStart bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logutil.Setup(cfg.EnableFileLogging)

	log.Printf("Region Snip initialized")
	log.Printf("Hotkey: %s", cfg.Hotkey)
	log.Printf("Nudge step: %dpx", cfg.NudgeStep)
	logMonitorConfiguration()

	a := app.New()
	a.SetIcon(fyne.NewStaticResource("icon.svg", tray.IconSVG))

	// The window and tray post into the loop; the loop variable is set
	// before either can fire (Show and tray Run happen below).
	var loop *eventloop.Loop
	post := func(m messages.Message) {
		if loop != nil {
			loop.Post(m)
		}
	}

	win := gui.New(a, cfg.Hotkey, post)
	tooltip := fmt.Sprintf("Region Snip - Press %s to select a region", cfg.Hotkey)
	tr := tray.New(tooltip, post)

	loop = eventloop.New(cfg, overlay.NewSelector(), win, tr)
	loop.SetServer(singleinstance.NewServer())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop.OnQuit(cancel)

	go tr.Run()
	defer tr.Quit()

	if err := loop.StartHotkey(cfg.Hotkey); err != nil {
		log.Printf("Hotkey %q unavailable: %v; use the window buttons instead", cfg.Hotkey, err)
	}

	// SIGINT/SIGTERM shut the resident down cleanly.
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()

	go func() {
		if err := loop.Run(ctx); err != nil {
			log.Printf("event loop stopped: %v", err)
		}
		fyne.Do(a.Quit)
	}()

	if selectOnStart {
		loop.Post(messages.NewRegion{})
	}

	win.Show()
	a.Run()
	return nil
}
