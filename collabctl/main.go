package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/docopt/docopt-go"

	"github.com/joho/godotenv"

	"codecollab.dev/collab"
)

const CollabCtlVersion = "0.1.0"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime)

	flag.Set("logtostderr", "true")
	flag.Set("stderrthreshold", "INFO")
}

func main() {
	usage := `Collab session control.

The default urls are:
    hub_url: ws://localhost:8002
    store_url: http://localhost:8000/api/v1
    exec_url: http://localhost:8001

Usage:
    collabctl open [--hub_url=<hub_url>] [--store_url=<store_url>]
        [--jwt=<jwt>] [--name=<name>] <session_id>
    collabctl sessions [--store_url=<store_url>] --jwt=<jwt>
    collabctl run [--exec_url=<exec_url>] [--jwt=<jwt>]
        --language=<language> <file>

Options:
    -h --help                Show this screen.
    --version                Show version.
    --hub_url=<hub_url>
    --store_url=<store_url>
    --exec_url=<exec_url>
    --jwt=<jwt>              Your bearer credential.
    --name=<name>            Display name override.
    --language=<language>    Language tag for execution.`

	godotenv.Load()

	opts, err := docopt.ParseArgs(usage, os.Args[1:], CollabCtlVersion)
	if err != nil {
		panic(err)
	}

	if open_, _ := opts.Bool("open"); open_ {
		open(opts)
	} else if sessions_, _ := opts.Bool("sessions"); sessions_ {
		sessions(opts)
	} else if run_, _ := opts.Bool("run"); run_ {
		run(opts)
	}
}

func optUrl(opts docopt.Opts, name string, envName string, defaultUrl string) string {
	if url, _ := opts.String(name); url != "" {
		return url
	}
	if url := os.Getenv(envName); url != "" {
		return url
	}
	return defaultUrl
}

// join a session, stream remote activity to stdout, and send stdin lines
// as chat until EOF or interrupt
func open(opts docopt.Opts) {
	hubUrl := optUrl(opts, "--hub_url", "COLLAB_HUB_URL", "ws://localhost:8002")
	storeUrl := optUrl(opts, "--store_url", "COLLAB_STORE_URL", "http://localhost:8000/api/v1")
	sessionId, _ := opts.String("<session_id>")
	jwt, _ := opts.String("--jwt")
	name, _ := opts.String("--name")

	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var storeApi *collab.StoreApi
	if storeUrl != "" {
		storeApi = collab.NewStoreApiWithContext(cancelCtx, storeUrl)
		storeApi.SetByJwt(jwt)
	}

	auth := &collab.SessionAuth{
		ByJwt:    jwt,
		Username: name,
	}

	client := collab.NewSessionClientWithDefaults(cancelCtx, hubUrl, sessionId, auth, storeApi)
	defer client.Close()

	client.AddConnectivityCallback(func(connected bool) {
		if connected {
			Err.Printf("connected as %s", client.ConnectionId())
		} else {
			Err.Printf("disconnected, retrying")
		}
	})
	client.AddTextCallback(func(text string) {
		Out.Printf("--- document (%d bytes) ---\n%s", len(text), text)
	})
	client.AddLanguageCallback(func(language string) {
		Err.Printf("language is now %s", language)
	})
	client.AddRosterCallback(func(participants []collab.Participant) {
		names := []string{}
		for _, p := range participants {
			names = append(names, p.Username)
		}
		Err.Printf("participants: %s", strings.Join(names, ", "))
	})
	client.AddChatCallback(func(message collab.ChatMessage) {
		Out.Printf("<%s> %s", message.Username, message.Content)
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-sig:
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if line != "" {
				client.SendChat(line)
			}
		}
	}
}

func sessions(opts docopt.Opts) {
	storeUrl := optUrl(opts, "--store_url", "COLLAB_STORE_URL", "http://localhost:8000/api/v1")
	jwt, _ := opts.String("--jwt")

	storeApi := collab.NewStoreApi(storeUrl)
	storeApi.SetByJwt(jwt)
	defer storeApi.Close()

	records, err := storeApi.ListSessionsSync()
	if err != nil {
		Err.Printf("list error: %s", err)
		os.Exit(1)
	}

	for _, record := range *records {
		Out.Printf("%s  %-10s  %s (share %s)", record.SessionId, record.Language, record.Name, record.ShareCode)
	}
}

func run(opts docopt.Opts) {
	execUrl := optUrl(opts, "--exec_url", "COLLAB_EXEC_URL", "http://localhost:8001")
	jwt, _ := opts.String("--jwt")
	language, _ := opts.String("--language")
	file, _ := opts.String("<file>")

	code, err := os.ReadFile(file)
	if err != nil {
		Err.Printf("read error: %s", err)
		os.Exit(1)
	}

	execApi := collab.NewExecApi(execUrl)
	execApi.SetByJwt(jwt)
	defer execApi.Close()

	result, err := execApi.ExecuteSync(&collab.ExecuteArgs{
		Code:     string(code),
		Language: language,
	})
	if err != nil {
		Err.Printf("execute error: %s", err)
		os.Exit(1)
	}

	if result.Stdout != "" {
		Out.Printf("%s", result.Stdout)
	}
	if result.Stderr != "" {
		Err.Printf("%s", result.Stderr)
	}
	Err.Printf("exit %d in %.3fs", result.ExitCode, result.ExecutionTime)
	os.Exit(result.ExitCode)
}
