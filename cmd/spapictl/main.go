// Package main is the entry point for the SP-API tool core.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/Pelmog/zigi-amazon-mcp/internal/config"
	"github.com/Pelmog/zigi-amazon-mcp/internal/core"
)

const (
	spapiTeal = "\033[38;2;35;149;163m"
	bold      = "\033[1m"
	reset     = "\033[0m"
)

const banner = `
 ███████╗██████╗  █████╗ ██████╗ ██╗ ██████╗████████╗██╗
 ██╔════╝██╔══██╗██╔══██╗██╔══██╗██║██╔════╝╚══██╔══╝██║
 ███████╗██████╔╝███████║██████╔╝██║██║        ██║   ██║
 ╚════██║██╔═══╝ ██╔══██║██╔═══╝ ██║██║        ██║   ██║
 ███████║██║     ██║  ██║██║     ██║╚██████╗   ██║   ███████╗
 ╚══════╝╚═╝     ╚═╝  ╚═╝╚═╝     ╚═╝ ╚═════╝   ╚═╝   ╚══════╝
`

// printBanner prints the ASCII banner in color when stdout is a terminal;
// piping the binary's output (the normal case, since its stdout also carries
// tool responses) gets a plain, uncolored line instead.
func printBanner() {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprint(os.Stderr, spapiTeal+bold+banner+reset+"\n")
		return
	}
	fmt.Fprintln(os.Stderr, "spapictl")
}

// loadEnvFiles loads .env from standard locations; local .env can override
// the user config directory's.
func loadEnvFiles() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		_ = godotenv.Load()
		return
	}
	configEnv := filepath.Join(homeDir, ".config", "spapictl", ".env")
	if _, err := os.Stat(configEnv); err == nil {
		_ = godotenv.Load(configEnv)
	}
	_ = godotenv.Load()
}

// resolveConfig resolves the config for the serve command: user flag ->
// filesystem locations -> embedded default.
func resolveConfig(userConfig string) ([]byte, string, error) {
	if userConfig != "" {
		data, err := os.ReadFile(userConfig)
		if err != nil {
			return nil, "", fmt.Errorf("config file not found: %s", userConfig)
		}
		return data, userConfig, nil
	}

	homeDir, _ := os.UserHomeDir()
	searchPaths := []string{}
	if homeDir != "" {
		searchPaths = append(searchPaths, filepath.Join(homeDir, ".config", "spapictl", "config.yaml"))
	}
	searchPaths = append(searchPaths, "configs/config.yaml", "config.yaml")

	for _, path := range searchPaths {
		if data, err := os.ReadFile(path); err == nil {
			return data, path, nil
		}
	}

	if data, err := getEmbeddedConfig("default"); err == nil {
		return data, "(embedded) default.yaml", nil
	}
	return nil, "", fmt.Errorf("no config file found; specify --config path")
}

func setupLogging(debug bool) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "-v", "--version":
			fmt.Println("spapictl (development build)")
			return
		case "help", "-h", "--help":
			printHelp()
			return
		}
	}
	runServe(os.Args[1:])
}

func printHelp() {
	printBanner()
	fmt.Println("spapictl - SP-API tool-invocation core")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  spapictl [--config FILE] [--debug] [--no-banner]")
	fmt.Println()
	fmt.Println("Reads newline-delimited JSON requests from stdin of the shape")
	fmt.Println(`  {"id":"1","tool":"listOrders","params":{...}}`)
	fmt.Println("and writes one newline-delimited JSON envelope per request to stdout.")
}

// runServe wires the core and drives the request loop until stdin closes or
// a shutdown signal arrives.
func runServe(args []string) {
	loadEnvFiles()

	fs := flag.NewFlagSet("spapictl", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	debug := fs.Bool("debug", false, "enable debug logging")
	noBanner := fs.Bool("no-banner", false, "suppress startup banner")
	_ = fs.Parse(args)

	if !*noBanner {
		printBanner()
	}
	setupLogging(*debug)

	configData, configSource, err := resolveConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("no config file found")
	}

	cfg, err := config.LoadFromBytes(configData)
	if err != nil {
		log.Fatal().Err(err).Str("config", configSource).Msg("failed to load configuration")
	}
	log.Info().Str("config", configSource).Msg("configuration loaded")

	c, err := core.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to wire core")
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	log.Info().Strs("tools", c.Tools.Names()).Msg("spapictl ready")
	serveStdio(ctx, c, os.Stdin, os.Stdout)
	log.Info().Msg("spapictl stopped")
}

// request is one line of the stdio protocol's input side.
type request struct {
	ID     string                 `json:"id"`
	Tool   string                 `json:"tool"`
	Params map[string]interface{} `json:"params"`
}

// response is one line of the stdio protocol's output side: the id echoed
// back alongside whatever envelope the tool registry produced.
type response struct {
	ID       string      `json:"id"`
	Envelope interface{} `json:"envelope"`
}

// serveStdio reads one JSON request per line from r and writes one JSON
// response per line to w, until r is exhausted, a response fails to write,
// or ctx is canceled. Blank lines are ignored; a line that fails to parse is
// logged and skipped. The actual tool-invocation transport (framing, transport
// negotiation, parameter annotation discovery) is an external collaborator;
// this loop is the minimal demonstration harness that exercises it.
func serveStdio(ctx context.Context, c *core.Core, r io.Reader, w io.Writer) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	enc := json.NewEncoder(w)

	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if line == "" {
				continue
			}
			var req request
			if err := json.Unmarshal([]byte(line), &req); err != nil {
				log.Warn().Err(err).Msg("malformed request line")
				continue
			}
			env := c.Tools.Invoke(ctx, req.Tool, req.Params)
			if err := enc.Encode(response{ID: req.ID, Envelope: env}); err != nil {
				log.Error().Err(err).Msg("failed to write response")
				return
			}
		}
	}
}
