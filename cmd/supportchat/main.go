package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/risklock/livesync/internal/api"
	"github.com/risklock/livesync/internal/auth"
	"github.com/risklock/livesync/internal/config"
	"github.com/risklock/livesync/internal/dashboard"
	"github.com/risklock/livesync/internal/events"
	dashboardModel "github.com/risklock/livesync/internal/model/dashboard"
	model "github.com/risklock/livesync/internal/model/support"
	"github.com/risklock/livesync/internal/presence"
	"github.com/risklock/livesync/internal/service/session"
	"github.com/risklock/livesync/internal/storage"
	"github.com/risklock/livesync/internal/support"
	"github.com/risklock/livesync/internal/transport"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	mode := flag.String("mode", "guest", "视图: guest、user、staff 或 dashboard")
	chatID := flag.String("chat", "", "staff 模式下直接打开的会话 ID")
	name := flag.String("name", "", "guest 模式下的访客名称")
	email := flag.String("email", "", "guest 模式下的访客邮箱")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()
	bus.Subscribe(func(e events.Event) {
		log.Printf("[%s] %s: %v", e.Kind, e.Source, e.Err)
	})

	authSession := auth.NewSession(bus)
	if cfg.API.Token != "" {
		if err := authSession.Login(cfg.API.Token); err != nil {
			log.Fatalf("RISKLOCK_TOKEN 无效: %v", err)
		}
	}

	client := api.New(cfg.API.BaseURL, cfg.API.Timeout, authSession)

	if *mode == "dashboard" {
		runDashboard(ctx, client, cfg.Polling.Dashboard, bus)
		return
	}

	store, err := storage.Open(cfg.Storage)
	if err != nil {
		log.Fatalf("打开存储失败: %v", err)
	}
	defer store.Close()

	deps := support.Deps{
		Sessions:  session.NewManager(store, client, bus),
		History:   client,
		Bus:       bus,
		WSURL:     cfg.API.WSURL,
		Transport: transport.OptionsFromConfig(cfg.Transport),
		Auth:      authSession,
	}

	var (
		conv    *support.Conversation
		console *support.Console
	)
	switch *mode {
	case "guest":
		conv, err = support.NewGuestWidget(deps, *name, *email)
	case "user":
		conv, err = support.NewLiveSupport(deps, authSession)
	case "staff":
		console, err = support.NewStaffConsole(deps, authSession, client, cfg.Polling.Chats)
		if console != nil {
			conv = console.Conversation
		}
	default:
		flag.Usage()
		log.Fatal("请通过 -mode=guest|user|staff|dashboard 指定视图")
	}
	if err != nil {
		log.Fatalf("无法创建会话: %v", err)
	}

	view := newRenderer()
	conv.Subscribe(view.render)
	if console != nil {
		console.SubscribeChats(view.renderChats)
		defer console.Close()
	} else {
		defer conv.Close()
	}

	if err := conv.Mount(ctx); err != nil {
		log.Fatalf("挂载失败: %v", err)
	}
	if console != nil && *chatID != "" {
		if err := console.Select(ctx, model.ID(*chatID)); err != nil {
			log.Fatalf("打开会话 %s 失败: %v", *chatID, err)
		}
	}

	fmt.Println("输入消息后回车发送；/retry 重发上一条失败的消息，/open <id> 切换会话，/quit 退出")
	runInput(ctx, conv, console)
}

// runInput 读取标准输入并发送，发送失败时保留输入以便 /retry。
func runInput(ctx context.Context, conv *support.Conversation, console *support.Console) {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	pending := ""
	for {
		select {
		case <-ctx.Done():
			return
		case <-conv.Done():
			fmt.Println("会话已结束（登录失效或已关闭）")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(line)

			switch {
			case line == "/quit":
				return
			case line == "/retry":
				if pending == "" {
					fmt.Println("没有待重发的消息")
					continue
				}
				line = pending
			case strings.HasPrefix(line, "/open "):
				if console == nil {
					fmt.Println("/open 仅在 staff 模式可用")
					continue
				}
				id := model.ID(strings.TrimSpace(strings.TrimPrefix(line, "/open ")))
				if err := console.Select(ctx, id); err != nil {
					fmt.Printf("打开会话失败: %v\n", err)
				}
				continue
			}

			err := conv.Send(ctx, line)
			switch {
			case err == nil:
				pending = ""
			case errors.Is(err, support.ErrEmptyMessage):
			case errors.Is(err, support.ErrNotConnected):
				pending = line
				fmt.Println("not connected - 输入 /retry 重发")
			default:
				pending = line
				fmt.Printf("发送失败: %v\n", err)
			}
		}
	}
}

// renderer 增量打印会话内容
type renderer struct {
	mu      sync.Mutex
	printed map[string]bool
	status  presence.Status
	channel transport.State
	chats   int
}

func newRenderer() *renderer {
	return &renderer{printed: make(map[string]bool)}
}

func (r *renderer) render(snap support.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if snap.Channel != r.channel {
		r.channel = snap.Channel
		fmt.Printf("-- channel %s\n", snap.Channel)
	}
	if snap.Status != r.status {
		r.status = snap.Status
		fmt.Printf("== %s\n", presence.Label(snap.Status, snap.Agent))
	}

	for _, msg := range snap.Messages {
		key := msg.IdentityKey()
		if r.printed[key] {
			continue
		}
		r.printed[key] = true
		// 同一条消息之后可能带着 id 再次到达
		if msg.ID != "" {
			noID := msg
			noID.ID = ""
			if r.printed[noID.IdentityKey()] {
				continue
			}
			r.printed[noID.IdentityKey()] = true
		}
		fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Local().Format("15:04:05"), speaker(msg), msg.Content)
	}
}

func (r *renderer) renderChats(chats []model.Chat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(chats) == r.chats {
		return
	}
	r.chats = len(chats)
	fmt.Printf("-- %d chats\n", len(chats))
	for _, chat := range chats {
		who := chat.GuestName
		if who == "" {
			who = "user " + string(chat.UserID)
		}
		fmt.Printf("   #%s %-8s %-8s %s\n", chat.ID, chat.Status, chat.Priority, who)
	}
}

func speaker(msg model.Message) string {
	if msg.SenderType == model.SenderStaff && msg.SenderName != "" {
		return msg.SenderName
	}
	return string(msg.SenderType)
}

// runDashboard 轮询仪表盘概览并打印变化
func runDashboard(ctx context.Context, client *api.Client, every time.Duration, bus *events.Bus) {
	poller := dashboard.NewPoller(client, every, bus)
	poller.Subscribe(func(o dashboardModel.Overview) {
		fmt.Printf("[%s] equity=%s profit=%s risk=%s buffer=%s%% trades=%d\n",
			poller.Badge(), o.Account.Equity.StringFixed(2), o.Account.Profit.StringFixed(2),
			o.Risk.Status, o.Risk.Metrics.BufferPct.StringFixed(2), o.DailyStats.TradesCount)
	})

	if err := poller.Start(ctx); err != nil {
		log.Fatalf("启动轮询失败: %v", err)
	}
	defer poller.Stop()

	// 登录失效时轮询器自行停止
	select {
	case <-ctx.Done():
	case <-poller.Done():
		if ctx.Err() == nil {
			fmt.Println("登录已失效，请重新获取 RISKLOCK_TOKEN")
		}
	}
}
