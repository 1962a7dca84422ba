package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"diary-client/internal/api"
	"diary-client/internal/config"
	"diary-client/internal/domain"
	"diary-client/internal/persist"
	"diary-client/internal/store"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	slot, closeSlot := newSnapshotStore(ctx, cfg, logger)
	defer closeSlot()

	client := api.NewClient(cfg.APIBaseURL, cfg.APITimeout, logger)
	session := store.NewSessionStore(ctx, client, slot, logger)
	notifications := store.NewNotificationQueue(
		store.NewClockScheduler(clockwork.NewRealClock()),
		store.WithDefaultDuration(cfg.NotifyDefaultDuration),
		store.WithLogger(logger),
	)

	initial := session.State()
	cli := &app{
		out:           os.Stdout,
		session:       session,
		notifications: notifications,
		lastStatus:    initial.Status,
		lastVersion:   initial.Version,
		seen:          make(map[string]bool),
	}
	defer session.Subscribe(cli.renderSession)()
	defer notifications.Subscribe(cli.renderNotifications)()

	if session.Token() != "" {
		session.CheckAuth(ctx)
		if !session.IsAuthenticated() {
			fmt.Fprintln(cli.out, "Tu sesion expiro. Inicia sesion de nuevo.")
		}
	}

	cli.run(ctx, bufio.NewReader(os.Stdin))
	session.Wait()
}

func newLogger(level string) *zap.Logger {
	zcfg := zap.NewDevelopmentConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		zcfg.Level = lvl
	}
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewExample()
	}
	return logger
}

func newSnapshotStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (persist.SnapshotStore, func()) {
	switch cfg.SessionBackend {
	case config.SessionBackendMemory:
		return persist.NewMemorySnapshotStore(), func() {}
	case config.SessionBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, falling back to file session", zap.Error(err))
			_ = client.Close()
			break
		}
		return persist.NewRedisSnapshotStore(client, cfg.SessionSlot), func() { _ = client.Close() }
	}
	return persist.NewFileSnapshotStore(cfg.SessionFile), func() {}
}

type app struct {
	out           io.Writer
	session       *store.SessionStore
	notifications *store.NotificationQueue
	lastStatus    store.Status
	lastVersion   uint64

	// las expiraciones llegan desde el goroutine del timer
	mu   sync.Mutex
	seen map[string]bool
}

func (a *app) run(ctx context.Context, reader *bufio.Reader) {
	a.printHelp()
	for {
		fmt.Fprint(a.out, a.prompt())
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if !a.dispatch(ctx, fields[0], fields[1:]) {
			return
		}
	}
}

func (a *app) prompt() string {
	if user := a.session.User(); user != nil && a.session.IsAuthenticated() {
		return fmt.Sprintf("%s [%s] > ", user.Name, user.Role)
	}
	return "diario > "
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) bool {
	switch strings.ToLower(cmd) {
	case "login":
		if len(args) != 2 {
			fmt.Fprintln(a.out, "Uso: login <email> <password>")
			return true
		}
		if a.session.Login(ctx, args[0], args[1]) {
			a.session.ClearError()
			a.notifications.Success("Bienvenido, "+a.session.User().Name, "")
		} else {
			fmt.Fprintf(a.out, "Error: %s\n", a.session.State().Error)
		}
	case "whoami":
		a.printUser()
	case "refresh":
		if a.session.Token() == "" {
			fmt.Fprintln(a.out, "No hay sesion activa.")
			return true
		}
		a.session.CheckAuth(ctx)
		if !a.session.IsAuthenticated() {
			fmt.Fprintln(a.out, "Tu sesion expiro. Inicia sesion de nuevo.")
		}
	case "logout":
		a.session.Logout(ctx)
		a.notifications.Info("Sesion cerrada", "")
	case "notify":
		a.notify(args)
	case "dismiss":
		if len(args) != 1 {
			fmt.Fprintln(a.out, "Uso: dismiss <id>")
			return true
		}
		a.notifications.Remove(args[0])
	case "list":
		a.printNotifications(a.notifications.List())
	case "clear":
		a.notifications.Clear()
	case "help":
		a.printHelp()
	case "quit", "exit", "salir":
		return false
	default:
		fmt.Fprintln(a.out, "Comando invalido. Escribe 'help'.")
	}
	return true
}

func (a *app) notify(args []string) {
	if len(args) < 3 {
		fmt.Fprintln(a.out, "Uso: notify <success|error|warning|info> <duracion, ej. 3s o 0> <mensaje>")
		return
	}
	typ := domain.NotificationType(strings.ToLower(args[0]))
	if !typ.Valid() {
		fmt.Fprintf(a.out, "Tipo invalido: %s\n", args[0])
		return
	}
	var duration time.Duration
	if args[1] != "0" {
		d, err := time.ParseDuration(args[1])
		if err != nil {
			fmt.Fprintf(a.out, "Duracion invalida: %v\n", err)
			return
		}
		duration = d
	}
	id := a.notifications.Add(store.NotificationInput{
		Type:     typ,
		Message:  strings.Join(args[2:], " "),
		Duration: duration,
	})
	fmt.Fprintf(a.out, "Notificacion %s creada.\n", id)
}

func (a *app) printUser() {
	st := a.session.State()
	if !st.IsAuthenticated {
		fmt.Fprintln(a.out, "No hay sesion activa.")
		return
	}
	u := st.User
	fmt.Fprintf(a.out, "%s <%s> rol=%s activo=%t\n", u.Name, u.Email, u.Role, u.IsActive)
	if u.Group != nil {
		fmt.Fprintf(a.out, "Grupo: %s\n", u.Group.Name)
	}
	switch {
	case u.IsSuperAdmin():
		fmt.Fprintln(a.out, "Secciones: usuarios, grupos, programas, notificaciones, diarios")
	case u.IsTeacher():
		fmt.Fprintln(a.out, "Secciones: grupos, revision de diarios, notificaciones")
	case u.IsStudent():
		fmt.Fprintln(a.out, "Secciones: mi diario, mis notas")
	}
}

func (a *app) renderSession(st store.SessionState) {
	if st.Version <= a.lastVersion {
		return
	}
	a.lastVersion = st.Version
	if st.Status == a.lastStatus {
		return
	}
	a.lastStatus = st.Status
	switch st.Status {
	case store.StatusAuthenticating:
		fmt.Fprintln(a.out, "... autenticando")
	case store.StatusLoggedIn:
		fmt.Fprintf(a.out, "[sesion] conectado como %s\n", st.User.Email)
	case store.StatusLoggedOut:
		fmt.Fprintln(a.out, "[sesion] desconectado")
	}
}

func (a *app) renderNotifications(list []domain.Notification) {
	a.mu.Lock()
	defer a.mu.Unlock()
	live := make(map[string]bool, len(list))
	for _, n := range list {
		live[n.ID] = true
		if !a.seen[n.ID] {
			fmt.Fprintf(a.out, "[%s] %s\n", strings.ToUpper(string(n.Type)), formatNotification(n))
		}
	}
	a.seen = live
}

func (a *app) printNotifications(list []domain.Notification) {
	if len(list) == 0 {
		fmt.Fprintln(a.out, "Sin notificaciones.")
		return
	}
	for _, n := range list {
		fmt.Fprintf(a.out, "%s  %-7s %s\n", n.ID, n.Type, formatNotification(n))
	}
}

func formatNotification(n domain.Notification) string {
	if n.Title == "" {
		return n.Message
	}
	return n.Title + ": " + n.Message
}

func (a *app) printHelp() {
	fmt.Fprintln(a.out, "===== Diario de Practicas =====")
	fmt.Fprintln(a.out, "login <email> <password>  | whoami | refresh | logout")
	fmt.Fprintln(a.out, "notify <tipo> <duracion> <mensaje> | dismiss <id> | list | clear")
	fmt.Fprintln(a.out, "help | quit")
}
