package demo

import (
	"bufio"
	"net"
	"sync"

	"github.com/Trinoooo/quail_ev/consts"
	"github.com/Trinoooo/quail_ev/logs"
	"github.com/Trinoooo/quail_ev/utils"
	"github.com/bytedance/gopkg/util/gopool"
	"go.uber.org/zap"
)

var demoLogger = logs.With(consts.ComponentDemo)

const handlerPoolCapacity = 1000

// EchoServer 没用多路IO复用，纯goroutine并发；给async客户端当对端用
type EchoServer struct {
	mutex    sync.Mutex
	listener net.Listener
	pool     gopool.Pool
	stop     chan struct{}
	done     sync.WaitGroup
}

func NewEchoServer(addr string) (*EchoServer, error) {
	srv := &EchoServer{
		pool: gopool.NewPool("echo_handlers", handlerPoolCapacity, gopool.NewConfig()),
		stop: make(chan struct{}),
	}
	var err error
	srv.listener, err = net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return srv, nil
}

func (es *EchoServer) Addr() net.Addr {
	return es.listener.Addr()
}

func (es *EchoServer) Serve() error {
	for {
		select {
		case <-es.stop:
			return nil
		default:
		}

		conn, err := es.listener.Accept()
		if err != nil {
			es.mutex.Lock()
			select {
			case <-es.stop:
				es.mutex.Unlock()
				return nil
			default:
				demoLogger.Error("accept failed", zap.Error(err))
				close(es.stop)
				es.mutex.Unlock()
				return err
			}
		}

		es.done.Add(1)
		es.pool.Go(func() {
			defer utils.HandlePanic(func() {
				es.done.Done()
			})
			es.handle(conn)
		})
	}
}

func (es *EchoServer) handle(conn net.Conn) {
	defer func() {
		if err := conn.Close(); err != nil {
			demoLogger.Warn("close conn failed", zap.Error(err))
		}
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Bytes()
		out := make([]byte, 0, len(line)+1)
		out = append(out, line...)
		out = append(out, '\n')
		if _, err := conn.Write(out); err != nil {
			demoLogger.Warn("echo write failed", zap.Error(err))
			return
		}
	}
}

func (es *EchoServer) Close() error {
	es.mutex.Lock()
	select {
	case <-es.stop:
		es.mutex.Unlock()
		return nil
	default:
	}
	close(es.stop)
	err := es.listener.Close()
	es.mutex.Unlock()
	es.done.Wait()
	return err
}
