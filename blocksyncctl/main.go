package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/term"

	"github.com/bringyour/blocksync/blocksync"
)

const BlockSyncCtlVersion = "0.0.1"

const DefaultEngineUrl = "ws://127.0.0.1:31007/engine"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := fmt.Sprintf(`Block sync control.

The default engine url is %s

Usage:
    blocksyncctl open [--config=<config>] [--engine_url=<engine_url>] [--jwt=<jwt>]
        [--timeout=<timeout>] <root_id>
    blocksyncctl tail [--config=<config>] [--engine_url=<engine_url>] [--jwt=<jwt>]
        [--metrics_addr=<metrics_addr>] <root_id>
    blocksyncctl send [--config=<config>] [--engine_url=<engine_url>] [--jwt=<jwt>]
        [--timeout=<timeout>] <command> [<payload_json>]
    blocksyncctl session-info [--jwt=<jwt>]

Options:
    -h --help                    Show this screen.
    --version                    Show version.
    --config=<config>            Yaml client config.
    --engine_url=<engine_url>    Engine websocket url.
    --jwt=<jwt>                  Engine session jwt. Read from the terminal if not set.
    --timeout=<timeout>          Wait this long for the response [default: 10s].
    --metrics_addr=<metrics_addr>  Serve prometheus metrics at this address, e.g. :9090.`, DefaultEngineUrl)

	opts, err := docopt.ParseArgs(usage, os.Args[1:], BlockSyncCtlVersion)
	if err != nil {
		panic(err)
	}

	flag.Set("logtostderr", "true")

	if open_, _ := opts.Bool("open"); open_ {
		open(opts)
	} else if tail_, _ := opts.Bool("tail"); tail_ {
		tail(opts)
	} else if send_, _ := opts.Bool("send"); send_ {
		send(opts)
	} else if sessionInfo_, _ := opts.Bool("session-info"); sessionInfo_ {
		sessionInfo(opts)
	}
}

func loadConfig(opts docopt.Opts) *blocksync.ClientConfig {
	config := &blocksync.ClientConfig{}
	if configPath, err := opts.String("--config"); err == nil && configPath != "" {
		config, err = blocksync.LoadClientConfig(configPath)
		if err != nil {
			Err.Fatalf("Could not load config: %s", err)
		}
	}
	if engineUrl, err := opts.String("--engine_url"); err == nil && engineUrl != "" {
		config.EngineUrl = engineUrl
	}
	if config.EngineUrl == "" {
		config.EngineUrl = DefaultEngineUrl
	}
	config.Jwt = readJwt(opts, config.Jwt)
	return config
}

// the flag wins over the config. when neither is set, prompt without echo.
func readJwt(opts docopt.Opts, configJwt string) string {
	if jwt, err := opts.String("--jwt"); err == nil && jwt != "" {
		return jwt
	}
	if configJwt != "" {
		return configJwt
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return ""
	}
	fmt.Fprint(os.Stderr, "jwt: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		Err.Fatalf("Could not read jwt: %s", err)
	}
	return strings.TrimSpace(string(b))
}

func timeout(opts docopt.Opts) time.Duration {
	timeoutStr, _ := opts.String("--timeout")
	if timeoutStr == "" {
		return 10 * time.Second
	}
	d, err := time.ParseDuration(timeoutStr)
	if err != nil {
		Err.Fatalf("Bad timeout: %s", err)
	}
	return d
}

// serves `/metrics` until the process exits. nil when no address is set.
func serveMetrics(opts docopt.Opts) blocksync.Telemetry {
	metricsAddr, _ := opts.String("--metrics_addr")
	if metricsAddr == "" {
		return nil
	}
	registry := prometheus.NewRegistry()
	telemetry := blocksync.NewPrometheusTelemetry(registry)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			Err.Printf("Metrics server error: %s", err)
		}
	}()
	return telemetry
}

func newSession(ctx context.Context, config *blocksync.ClientConfig, telemetry blocksync.Telemetry) (*blocksync.Session, func()) {
	transport := blocksync.NewWsTransport(
		ctx,
		config.EngineUrl,
		config.ClientAuth(),
		config.WsTransportSettings(),
	)
	settings := blocksync.DefaultSessionSettings()
	settings.DispatcherSettings = config.DispatcherSettings()
	session := blocksync.NewSession(ctx, transport, blocksync.NewProtoCodec(), telemetry, settings)
	return session, func() {
		session.Cancel()
		transport.Close()
	}
}

func open(opts docopt.Opts) {
	rootId, _ := opts.String("<root_id>")
	config := loadConfig(opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, closeSession := newSession(ctx, config, nil)
	defer closeSession()

	if err := openTree(session, rootId, timeout(opts)); err != nil {
		Err.Fatalf("Open error: %s", err)
	}
}

// opens the root, prints its tree and closes it again
func openTree(session *blocksync.Session, rootId string, timeout time.Duration) error {
	callback, result := blocksync.NewBlockingCompleteCallback()
	if err := session.Open(rootId, callback); err != nil {
		return err
	}
	select {
	case r := <-result:
		if r.Error != nil {
			return r.Error
		}
	case <-time.After(timeout):
		return errors.New("Open timeout.")
	}

	printTree(session.Store(), rootId)

	closeCallback, closeResult := blocksync.NewBlockingCompleteCallback()
	if err := session.Close(rootId, closeCallback); err == nil {
		select {
		case <-closeResult:
		case <-time.After(timeout):
		}
	}
	return nil
}

// prints the tree after each applied change until interrupted
func tail(opts docopt.Opts) {
	rootId, _ := opts.String("<root_id>")
	config := loadConfig(opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, closeSession := newSession(ctx, config, serveMetrics(opts))
	defer closeSession()

	changes := make(chan struct{}, 1)
	removeChangeCallback := session.Store().AddChangeCallback(func(changedRootId string) {
		if changedRootId != rootId {
			return
		}
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	defer removeChangeCallback()

	removeProgressCallback := session.Progress().AddProgressCallback(func(process *blocksync.Process, cleared bool) {
		if cleared {
			Out.Printf("process %s cleared", process.Id)
		} else {
			Out.Printf("process %s %d/%d", process.Id, process.Done, process.Total)
		}
	})
	defer removeProgressCallback()

	if err := session.Open(rootId, func(response *blocksync.Response, err error) {
		if err != nil {
			Err.Printf("Open error: %s", err)
		}
	}); err != nil {
		Err.Fatalf("Open error: %s", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-quit:
			session.Close(rootId, nil)
			return
		case <-changes:
			// coalesce bursts from a single batch
			time.Sleep(50 * time.Millisecond)
			Out.Printf("--- %s", time.Now().Format(time.RFC3339))
			printTree(session.Store(), rootId)
		}
	}
}

func send(opts docopt.Opts) {
	command, _ := opts.String("<command>")
	payloadJson, _ := opts.String("<payload_json>")
	config := loadConfig(opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, closeSession := newSession(ctx, config, nil)
	defer closeSession()

	if err := sendCommand(session, command, payloadJson, timeout(opts)); err != nil {
		Err.Fatalf("Send error: %s", err)
	}
}

// sends one command and prints the response data as json.
// a remote error is printed and is not returned.
func sendCommand(session *blocksync.Session, command string, payloadJson string, timeout time.Duration) error {
	payload := blocksync.Payload{}
	if payloadJson != "" {
		if err := json.Unmarshal([]byte(payloadJson), &payload); err != nil {
			return fmt.Errorf("Bad payload: %w", err)
		}
	}

	callback, result := blocksync.NewBlockingCompleteCallback()
	requestId, err := session.Send(command, payload, callback)
	if err != nil {
		return err
	}
	select {
	case r := <-result:
		var remoteErr *blocksync.RemoteError
		if r.Error != nil && !errors.As(r.Error, &remoteErr) {
			return r.Error
		}
		if r.Error != nil {
			Err.Printf("%s error: %s", requestId, r.Error)
		}
		if r.Response != nil {
			dataJson, _ := json.MarshalIndent(r.Response.Data, "", "    ")
			Out.Printf("%s", dataJson)
		}
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("%s timeout.", requestId)
	}
}

func sessionInfo(opts docopt.Opts) {
	jwt := readJwt(opts, "")
	sessionJwt, err := blocksync.ParseSessionJwtUnverified(jwt)
	if err != nil {
		Err.Fatalf("Bad jwt: %s", err)
	}
	Out.Printf("account_id: %s", sessionJwt.AccountId)
	Out.Printf("session_id: %s", sessionJwt.SessionId)
	Out.Printf("device_id: %s", sessionJwt.DeviceId)
}

func printTree(store *blocksync.MemoryTreeStore, rootId string) {
	store.Walk(rootId, func(node *blocksync.Node, depth int) {
		indent := strings.Repeat("    ", depth)
		line := fmt.Sprintf("%s%s", indent, node)
		switch c := node.Content.(type) {
		case *blocksync.TextContent:
			if 0 < node.Number {
				line = fmt.Sprintf("%s %d.", line, node.Number)
			}
			line = fmt.Sprintf("%s %q", line, c.Text)
		case *blocksync.FileContent:
			line = fmt.Sprintf("%s %s (%s)", line, c.Name, c.Mime)
		case *blocksync.BookmarkContent:
			line = fmt.Sprintf("%s %s", line, c.Url)
		case *blocksync.LinkContent:
			line = fmt.Sprintf("%s -> %s", line, c.TargetBlockId)
		}
		Out.Printf("%s", line)
	})
}
