// Command serenod is the per-profile chat daemon. It owns the room
// connection and serves the control socket used by serenoctl and serenotui.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sereno-app/sereno/internal/config"
	"github.com/sereno-app/sereno/internal/daemon"
	"github.com/sereno-app/sereno/internal/session"
	"go.uber.org/fx"
)

func main() {
	var p daemon.Params
	flag.StringVar(&p.Profile, "profile", "", "profile name (overrides config default)")
	flag.StringVar(&p.Room, "room", "", "room to open on startup")
	flag.Parse()

	profile, err := session.Active(p.Profile)
	if err != nil {
		exit(err)
	}
	p.Profile = profile

	// The profile's .env is loaded before the working directory's so its
	// values win.
	if err := config.LoadDotEnv(session.EnvPath(profile), ".env"); err != nil {
		exit(err)
	}

	fx.New(daemon.Module(p)).Run()
}

func exit(err error) {
	fmt.Fprintf(os.Stderr, "serenod: %v\n", err)
	os.Exit(1)
}
