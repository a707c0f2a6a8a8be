// Package main 提供 comms-node 命令行入口
//
// 启动一个通信层节点，按参数拨号指定节点，打印连接生命周期事件，
// 收到 SIGINT/SIGTERM 后优雅关闭。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dep2p/go-comms"
	"github.com/dep2p/go-comms/internal/core/connmgr"
	"github.com/dep2p/go-comms/pkg/lib/log"
	"github.com/dep2p/go-comms/pkg/types"
)

var logger = log.Logger("cmd/comms-node")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
//   命令行参数：运行时覆盖（本次运行）
//   JSON 配置文件：持久化配置（本节点）
//
var (
	configFile   = flag.String("config", "", "配置文件路径")
	preset       = flag.String("preset", "", "预设配置 (basenode/wallet/localtest)")
	identityFile = flag.String("identity", "", "身份密钥文件路径（不存在时生成）")
	listenAddr   = flag.String("listen", "", "主监听地址，例如 /ip4/0.0.0.0/tcp/18189")
	auxListen    = flag.String("aux-listen", "", "辅助 TCP 监听地址")
	auxRequired  = flag.Bool("aux-required", false, "辅助监听器绑定失败时退出")
	network      = flag.String("network", "", "网络 (mainnet/localnet/ridcully/stibbons/weatherwax)")
	allowTest    = flag.Bool("allow-test-addresses", false, "允许回环与私有地址（仅测试环境）")
	diagAddr     = flag.String("diagnostics", "", "诊断与指标 HTTP 地址，例如 127.0.0.1:6060")
	verbose      = flag.Bool("verbose", false, "输出 fx 组装日志")

	dialTargets dialFlags
)

// dialTimeout 启动时每个 -dial 目标的拨号超时
const dialTimeout = 30 * time.Second

func init() {
	flag.Var(&dialTargets, "dial", "启动后拨号 <public-key>@<multiaddr>（可重复）")
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	opts, err := buildOptions()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	node, err := comms.New(opts...)
	if err != nil {
		return fmt.Errorf("创建节点失败: %w", err)
	}
	defer func() { _ = node.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub, err := node.Subscribe()
	if err != nil {
		return err
	}
	defer sub.Close()

	if err := node.Start(ctx); err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	printNodeInfo(node)

	for _, target := range dialTargets {
		go dial(ctx, node, target)
	}

	fmt.Println("节点已启动，按 Ctrl+C 退出")
	for {
		select {
		case ev, ok := <-sub.Out():
			if !ok {
				return nil
			}
			printEvent(ev)
		case <-ctx.Done():
			fmt.Println("\n正在关闭节点...")
			return nil
		}
	}
}

// buildOptions 构建节点选项
//
// 优先级：命令行参数 > 预设 > 配置文件。
func buildOptions() ([]comms.Option, error) {
	var opts []comms.Option

	if *configFile != "" {
		opts = append(opts, comms.WithConfigFile(*configFile))
	}
	if *preset != "" {
		opts = append(opts, comms.WithPreset(*preset))
	}
	if *identityFile != "" {
		opts = append(opts, comms.WithIdentityFile(*identityFile))
	}
	if *listenAddr != "" {
		opts = append(opts, comms.WithListenAddress(*listenAddr))
	}
	if *auxListen != "" {
		opts = append(opts, comms.WithAuxiliaryListenAddress(*auxListen, *auxRequired))
	}
	if *network != "" {
		opts = append(opts, comms.WithNetwork(*network))
	}
	if isFlagSet("allow-test-addresses") {
		opts = append(opts, comms.WithAllowTestAddresses(*allowTest))
	}
	if *diagAddr != "" {
		opts = append(opts, comms.WithDiagnosticsAddress(*diagAddr))
	}
	opts = append(opts, comms.WithVerbose(*verbose))

	return opts, nil
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func dial(ctx context.Context, node *comms.Node, target dialTarget) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, err := node.Connect(ctx, target.PublicKey, target.Addr)
	if err != nil {
		logger.Warn("拨号失败", "peer", types.NodeIDFromPublicKey(target.PublicKey).ShortString(), "addr", target.Addr, "error", err)
		return
	}
	logger.Info("拨号成功", "conn", conn.String())
}

func printNodeInfo(node *comms.Node) {
	info, err := node.ListenerInfo()
	if err != nil {
		return
	}

	fmt.Println("══════════════════════════════════════════════════════")
	fmt.Printf("  NodeID:     %s\n", node.ID())
	fmt.Printf("  PublicKey:  %s\n", types.EncodePublicKey(node.PublicKey()))
	fmt.Printf("  Listen:     %s\n", info.BindAddress)
	if info.AuxBindAddress != nil {
		fmt.Printf("  AuxListen:  %s\n", info.AuxBindAddress)
	}
	for _, a := range node.PublicAddresses() {
		fmt.Printf("  Public:     %s\n", a)
	}
	if addr := node.DiagnosticsAddr(); addr != "" {
		fmt.Printf("  Diagnostics: http://%s/debug/introspect\n", addr)
	}
	fmt.Println("══════════════════════════════════════════════════════")
}

func printEvent(ev connmgr.Event) {
	fmt.Printf("%s  %s\n", time.Now().Format("15:04:05.000"), ev)
}
