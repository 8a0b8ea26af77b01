package consts

const (
	B = 1 << (iota * 10)
	KB
	MB
	GB
)

const HelpTemplate = `NAME:
   {{.Name}} - {{.Usage}}
USAGE:
   {{.HelpName}} {{if .VisibleFlags}}[global options]{{end}}{{if .Commands}} command [command options]{{end}} {{if .ArgsUsage}}{{.ArgsUsage}}{{else}}[arguments...]{{end}}
   {{if len .Authors}}
AUTHOR:
   {{range .Authors}}{{ . }}{{end}}
   {{end}}{{if .Commands}}
COMMANDS:
{{range .Commands}}{{if not .HideHelp}}   {{join .Names ", "}}{{ "\t"}}{{.Usage}}{{ "\n" }}{{end}}{{end}}{{end}}{{if .VisibleFlags}}
GLOBAL OPTIONS:
   {{range .VisibleFlags}}{{.}}
   {{end}}{{end}}{{if .Copyright }}
COPYRIGHT:
   {{.Copyright}}
   {{end}}{{if .Version}}
VERSION:
   {{.Version}}
   {{end}}
`

const (
	LogFieldParams = "params"
	LogFieldValue  = "value"
	LogFieldFd     = "fd"
	LogFieldErr    = "err"
)

const (
	Component       = "component"
	ComponentBridge = "bridge"
	ComponentLoop   = "reactor"
	ComponentAsync  = "async"
	ComponentDemo   = "demo"
)
