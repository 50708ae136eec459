package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/abiosoft/ishell/v2"
	"github.com/caarlos0/env/v11"
	"github.com/edup2p/pairsok/pairsok"
	"github.com/edup2p/pairsok/types/directory"
	"github.com/edup2p/pairsok/types/key"
	"github.com/edup2p/pairsok/types/pairing"
	"github.com/edup2p/pairsok/types/sharecode"
)

type Config struct {
	DisplayName string `env:"PAIRSOK_NAME" envDefault:"pairsok-device"`

	Listen string `env:"PAIRSOK_LISTEN" envDefault:"127.0.0.1:0"`

	Keystore string `env:"PAIRSOK_KEYSTORE"`

	// Confirm makes entered codes stop for explicit confirmation of the
	// resolved peer before anything is sent.
	Confirm bool `env:"PAIRSOK_CONFIRM"`
}

var (
	programLevel = new(slog.LevelVar) // Info by default

	cfg Config

	devPriv *key.DevicePrivate

	// store is the rendezvous backend; in-memory, so this shell pairs
	// against other engines in the same process, or is pointed at by tests.
	store = directory.NewMemStore()

	engineCancel context.CancelFunc
	engine       *pairsok.Engine
)

func main() {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: programLevel})
	slog.SetDefault(slog.New(h))
	programLevel.Set(slog.LevelInfo)

	if err := env.Parse(&cfg); err != nil {
		slog.Error("could not parse environment config", "err", err)
		os.Exit(1)
	}

	shell := ishell.New()

	shell.SetHomeHistoryPath(".pairsok_history")

	shell.Println("PairSok Interactive Shell")

	shell.AddCmd(&ishell.Cmd{
		Name: "trace",
		Help: "set log level to trace",
		Func: func(c *ishell.Context) {
			programLevel.Set(-8)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "debug",
		Help: "set log level to debug",
		Func: func(c *ishell.Context) {
			programLevel.Set(slog.LevelDebug)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "info",
		Help: "set log level to info",
		Func: func(c *ishell.Context) {
			programLevel.Set(slog.LevelInfo)
		},
	})

	shell.AddCmd(keyCmd())
	shell.AddCmd(enCmd())
	shell.AddCmd(pairCmd())

	shell.Run()
}

// Key commands
func keyCmd() *ishell.Cmd {
	c := &ishell.Cmd{
		Name: "key",
		Help: "device key setting, generating, loading and saving",
		Func: func(c *ishell.Context) {
			if devPriv == nil {
				c.Println("key: nil")
			} else {
				c.Println("key:", devPriv.Marshal())
			}
		},
	}

	c.AddCmd(&ishell.Cmd{
		Name: "gen",
		Help: "generate a new device key",
		Func: func(c *ishell.Context) {
			k := key.NewDevice()
			devPriv = &k

			c.Println("key generated:", devPriv.Marshal())
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "set",
		Help: "set a device key",
		Func: func(c *ishell.Context) {
			var line string
			if len(c.Args) == 0 {
				c.Println("enter the key, with 'devpriv:' prefix")
				line = c.ReadLine()
			} else {
				line = c.Args[0]
			}

			if p, err := key.UnmarshalDevicePrivate(line); err != nil {
				c.Err(err)
				return
			} else {
				devPriv = p
			}
		},
	})

	c.AddCmd(&ishell.Cmd{Name: "pub", Help: "show the pubkey", Func: func(c *ishell.Context) {
		if devPriv != nil {
			c.Println("pub:", devPriv.Public().Marshal())
		} else {
			c.Err(errors.New("device key not set"))
		}
	}})

	c.AddCmd(&ishell.Cmd{
		Name: "load",
		Help: "load the device key from the keystore",
		Func: func(c *ishell.Context) {
			if cfg.Keystore == "" {
				c.Err(errors.New("PAIRSOK_KEYSTORE not set"))
				return
			}

			c.Print("passphrase: ")
			pass := c.ReadPassword()

			priv, name, err := key.LoadKeystore(cfg.Keystore, pass)
			if err != nil {
				c.Err(err)
				return
			}

			devPriv = &priv
			if name != "" {
				cfg.DisplayName = name
			}

			c.Println("loaded key:", devPriv.Public().Marshal())
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "save",
		Help: "save the device key to the keystore",
		Func: func(c *ishell.Context) {
			if cfg.Keystore == "" {
				c.Err(errors.New("PAIRSOK_KEYSTORE not set"))
				return
			}

			if devPriv == nil {
				c.Err(errors.New("device key not set"))
				return
			}

			c.Print("passphrase: ")
			pass := c.ReadPassword()

			if err := key.SaveKeystore(cfg.Keystore, *devPriv, cfg.DisplayName, pass); err != nil {
				c.Err(err)
				return
			}

			c.Println("saved keystore to", cfg.Keystore)
		},
	})

	return c
}

// Engine commands
func enCmd() *ishell.Cmd {
	c := &ishell.Cmd{
		Name: "en",
		Help: "engine starting and stopping",
	}

	c.AddCmd(&ishell.Cmd{
		Name: "start",
		Help: "start the engine",
		Func: func(c *ishell.Context) {
			if engine != nil {
				c.Err(errors.New("engine already started"))
				return
			}

			if devPriv == nil {
				k := key.NewDevice()
				devPriv = &k
				c.Println("generated ephemeral device key:", devPriv.Public().Marshal())
			}

			listener, err := net.Listen("tcp", cfg.Listen)
			if err != nil {
				c.Err(err)
				return
			}

			ctx, cancel := context.WithCancel(context.Background())

			e, err := pairsok.NewEngine(pairsok.EngineOptions{
				Ctx:                 ctx,
				DevPriv:             *devPriv,
				DisplayName:         cfg.DisplayName,
				Store:               store,
				Listener:            listener,
				ConfirmResolvedPeer: cfg.Confirm,
			})
			if err != nil {
				cancel()
				_ = listener.Close()
				c.Err(err)
				return
			}

			if err := e.Start(); err != nil {
				cancel()
				_ = listener.Close()
				c.Err(err)
				return
			}

			engine = e
			engineCancel = cancel

			go watchUpdates(e)

			c.Println("engine started, listening on", listener.Addr())
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "stop",
		Help: "stop the engine",
		Func: func(c *ishell.Context) {
			if engine == nil {
				c.Err(errors.New("engine not started"))
				return
			}

			engineCancel()
			engine = nil

			c.Println("engine stopped")
		},
	})

	return c
}

func watchUpdates(e *pairsok.Engine) {
	for u := range e.Updates() {
		line := fmt.Sprintf("[%s] %s %s -> %s",
			sharecode.EncodePrefix(u.Prefix), u.Prefix.Debug(), u.Role, u.State)

		if u.PeerName.Valid {
			line += fmt.Sprintf(" peer=%q", u.PeerName.Val)
		}
		if u.Tier.Valid {
			line += fmt.Sprintf(" tier=%s", u.Tier.Val)
		}

		slog.Info(line)
	}
}

// Pairing commands
func pairCmd() *ishell.Cmd {
	c := &ishell.Cmd{
		Name: "pair",
		Help: "pairing session commands",
	}

	needEngine := func(c *ishell.Context) bool {
		if engine == nil {
			c.Err(errors.New("engine not started"))
			return false
		}
		return true
	}

	parsePrefix := func(c *ishell.Context) (pairing.Prefix, bool) {
		if len(c.Args) == 0 {
			c.Err(errors.New("expected a share code argument"))
			return pairing.Prefix{}, false
		}

		prefix, err := sharecode.Decode(c.Args[0])
		if err != nil {
			c.Err(err)
			return pairing.Prefix{}, false
		}

		return prefix, true
	}

	c.AddCmd(&ishell.Cmd{
		Name: "gen",
		Help: "generate a share code: [ttl-seconds]",
		Func: func(c *ishell.Context) {
			if !needEngine(c) {
				return
			}

			var ttl time.Duration
			if len(c.Args) > 0 {
				secs, err := strconv.ParseInt(c.Args[0], 10, 64)
				if err != nil {
					c.Err(err)
					return
				}
				ttl = time.Duration(secs) * time.Second
			}

			code, _, err := engine.GenerateCode(ttl)
			if err != nil {
				c.Err(err)
				return
			}

			c.Println("share code:", code)
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "enter",
		Help: "enter a share code: <code>",
		Func: func(c *ishell.Context) {
			if !needEngine(c) {
				return
			}

			if len(c.Args) == 0 {
				c.Err(errors.New("expected a share code argument"))
				return
			}

			prefix, err := engine.EnterCode(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}

			c.Println("pairing started:", prefix.Debug())
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "confirm",
		Help: "confirm a pending pairing: <code>",
		Func: func(c *ishell.Context) {
			if !needEngine(c) {
				return
			}

			if prefix, ok := parsePrefix(c); ok {
				if err := engine.Confirm(prefix); err != nil {
					c.Err(err)
				}
			}
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "reject",
		Help: "reject a pending pairing: <code>",
		Func: func(c *ishell.Context) {
			if !needEngine(c) {
				return
			}

			if prefix, ok := parsePrefix(c); ok {
				if err := engine.Reject(prefix); err != nil {
					c.Err(err)
				}
			}
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "cancel",
		Help: "cancel a pairing session: <code>",
		Func: func(c *ishell.Context) {
			if !needEngine(c) {
				return
			}

			if prefix, ok := parsePrefix(c); ok {
				if err := engine.Cancel(prefix); err != nil {
					c.Err(err)
				}
			}
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "list",
		Help: "list pairing sessions",
		Func: func(c *ishell.Context) {
			if !needEngine(c) {
				return
			}

			sessions := engine.Sessions()
			if len(sessions) == 0 {
				c.Println("no sessions")
				return
			}

			for _, s := range sessions {
				line := fmt.Sprintf("%s  %-8s  %-20s", sharecode.EncodePrefix(s.Prefix), s.Role, s.State)

				if s.PeerName != "" {
					line += fmt.Sprintf("  peer=%q", s.PeerName)
				}
				if s.Reason != nil {
					line += fmt.Sprintf("  reason=%v", s.Reason)
				}

				c.Println(line)
			}
		},
	})

	return c
}
