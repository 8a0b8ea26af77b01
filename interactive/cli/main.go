//go:build unix

package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/Trinoooo/quail_ev/async"
	"github.com/Trinoooo/quail_ev/bridge"
	"github.com/Trinoooo/quail_ev/consts"
	"github.com/Trinoooo/quail_ev/reactor"
	"github.com/chzyer/readline"
	"github.com/urfave/cli/v2"
)

func main() {
	wrapper := NewCliWrapper()
	if err := wrapper.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

var (
	flagHost = &cli.StringFlag{
		Name:    "host",
		Aliases: []string{"h"},
		Value:   "127.0.0.1",
		Usage:   "server host name.",
		EnvVars: []string{consts.Host},
	}
	flagPort = &cli.Int64Flag{
		Name:    "port",
		Aliases: []string{"p"},
		Value:   8014,
		Usage:   "server port number, 0 < port < 65535 are available.",
		Action: func(c *cli.Context, port int64) error {
			if port <= 0 || port > 65535 {
				return errors.New("invalid params")
			}
			return nil
		},
		EnvVars: []string{consts.Port},
	}
)

type CliWrapper struct {
	app *cli.App
}

func NewCliWrapper() *CliWrapper {
	wrapper := &CliWrapper{
		app: &cli.App{
			Name:    "quail_ev_client",
			Usage:   "interactive client driving an attached async context",
			Version: "0.0.1.240829_alpha",
		},
	}
	wrapper.modifyDefaultHelp()
	wrapper.withFlags()
	wrapper.withAction()
	wrapper.withAuthor()
	return wrapper
}

func (wrapper *CliWrapper) Run(args []string) error {
	return wrapper.app.Run(args)
}

func (wrapper *CliWrapper) modifyDefaultHelp() {
	cli.HelpFlag = &cli.BoolFlag{
		Name: "help",
	}
}

func (wrapper *CliWrapper) withFlags() {
	wrapper.app.Flags = []cli.Flag{
		flagHost,
		flagPort,
	}
}

func (wrapper *CliWrapper) withAction() {
	wrapper.app.Action = func(cliCtx *cli.Context) error {
		lp, err := reactor.New()
		if err != nil {
			return err
		}

		ctx, err := async.Connect(cliCtx.String("host"), int(cliCtx.Int64("port")))
		if err != nil {
			_ = lp.Close()
			return err
		}
		if err = bridge.Attach(lp, ctx); err != nil {
			ctx.Disconnect()
			_ = lp.Close()
			return err
		}

		disconnected := make(chan struct{})
		ctx.OnDisconnect(func(err error) {
			if err != nil {
				log.Println("disconnected, err:", err)
			}
			close(disconnected)
			_ = lp.Close()
		})

		go func() {
			if e := lp.Run(); e != nil {
				log.Println("loop stopped, err:", e)
			}
		}()

		input, err := readline.NewEx(&readline.Config{
			Prompt: "> ",
			AutoComplete: readline.NewPrefixCompleter(
				readline.PcItem("ping"),
				readline.PcItem("PING"),
			),
			HistoryFile: fmt.Sprintf("%s/cli/cmd_history_%s", consts.TmpDir, time.Now().Format("20060102")),
		})
		if err != nil {
			log.Fatal(err)
		}
		defer func() {
			_ = input.Close()
		}()
		input.CaptureExitSignal()

		for {
			select {
			case <-disconnected:
				return errors.New("connection lost")
			default:
			}

			str, err := input.Readline()
			if err != nil {
				if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
					break
				}
				log.Println(err)
				continue
			}
			str = strings.TrimSpace(str)
			if str == "" {
				continue
			}
			if strings.EqualFold(str, "exit") {
				break
			}

			cmd := str
			if e := lp.Submit(func() {
				if doErr := ctx.Do(cmd, func(reply string, err error) {
					if err != nil {
						log.Println("command failed, err:", err)
						return
					}
					fmt.Println(reply)
				}); doErr != nil {
					log.Println("queue command failed, err:", doErr)
				}
			}); e != nil {
				return e
			}
		}

		_ = lp.Submit(func() {
			ctx.Disconnect()
			_ = lp.Close()
		})
		return nil
	}
}

func (wrapper *CliWrapper) withAuthor() {
	wrapper.app.Authors = []*cli.Author{
		{
			Name:  "Trino",
			Email: "sujun.trinoooo@gmail.com",
		},
	}
}
