package consts

const (
	Host = "QUAIL_EV_HOST" // 主机名，目前只支持ip
	Port = "QUAIL_EV_PORT" // 端口
	Env  = "QUAIL_EV_ENV"  // 运行环境，test/prod
	Home = "HOME"          // 家目录
)
