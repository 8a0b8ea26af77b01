//go:build unix

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Trinoooo/quail_ev/consts"
	"github.com/Trinoooo/quail_ev/demo"
	"github.com/Trinoooo/quail_ev/errs"
	"github.com/Trinoooo/quail_ev/logs"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	wrapper := NewWrapper()
	if err := wrapper.Run(os.Args); err != nil {
		logs.Logger.Fatal("quail_ev exit", zap.Error(err))
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
				e := errs.NewInvalidParamErr()
				logs.Logger.Error(e.Error(), zap.String(consts.LogFieldParams, "port"), zap.Int64(consts.LogFieldValue, port))
				return e
			}
			return nil
		},
		EnvVars: []string{consts.Port},
	}
)

type Wrapper struct {
	app *cli.App
}

func NewWrapper() *Wrapper {
	wrapper := &Wrapper{
		app: &cli.App{
			Name:    "quail_ev",
			Usage:   "event-loop bridge for async network clients",
			Version: "0.0.1.240829_alpha",
		},
	}
	wrapper.modifyDefaultHelp()
	wrapper.withFlags()
	wrapper.withCommands()
	wrapper.withAuthor()
	return wrapper
}

func (wrapper *Wrapper) Run(args []string) error {
	return wrapper.app.Run(args)
}

func (wrapper *Wrapper) modifyDefaultHelp() {
	cli.HelpFlag = &cli.BoolFlag{
		Name: "help",
	}
	cli.AppHelpTemplate = consts.HelpTemplate
}

func (wrapper *Wrapper) withFlags() {
	wrapper.app.Flags = []cli.Flag{
		flagHost,
		flagPort,
	}
}

func (wrapper *Wrapper) withCommands() {
	wrapper.app.Commands = []*cli.Command{
		{
			Name:  "serve",
			Usage: "run the demo echo server.",
			Action: func(ctx *cli.Context) error {
				addr := fmt.Sprintf("%s:%d", ctx.String("host"), ctx.Int64("port"))
				srv, err := demo.NewEchoServer(addr)
				if err != nil {
					return err
				}

				go func() {
					// bugfix: 使用缓冲通道避免执行信号处理程序之前有信号到达会被丢弃
					sig := make(chan os.Signal, 5)
					signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
					for range sig {
						logs.Logger.Info("shutdown...")
						if e := srv.Close(); e != nil {
							logs.Logger.Error("server shutdown", zap.Error(e))
						}
					}
				}()

				return srv.Serve()
			},
		},
		{
			Name:  "ping",
			Usage: "attach a client to an event loop and ping the server.",
			Action: func(ctx *cli.Context) error {
				pinger, err := demo.NewPinger(ctx.String("host"), int(ctx.Int64("port")), demo.LoadConfig())
				if err != nil {
					return err
				}

				go func() {
					sig := make(chan os.Signal, 5)
					signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
					for range sig {
						logs.Logger.Info("shutdown...")
						pinger.Stop()
					}
				}()

				return pinger.Run()
			},
		},
	}
}

func (wrapper *Wrapper) withAuthor() {
	wrapper.app.Authors = []*cli.Author{
		{
			Name:  "Trino",
			Email: "sujun.trinoooo@gmail.com",
		},
	}
}
