package repl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gradeflow/internal/cli/command"
	"gradeflow/internal/cli/config"
	httpclient "gradeflow/internal/cli/http"
	"gradeflow/internal/cli/state"
	"gradeflow/internal/cli/token"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

const prompt = "reviewctl> "

// Session holds REPL state.
type Session struct {
	client     *httpclient.Client
	commands   map[string]command.Command
	tokenState *state.TokenState
	cfg        config.Config
	prettyJSON bool
	rl         *readline.Instance
	out        io.Writer
	now        func() time.Time
}

func New(client *httpclient.Client, commands map[string]command.Command, tokenState *state.TokenState, cfg config.Config) *Session {
	return &Session{
		client:     client,
		commands:   commands,
		tokenState: tokenState,
		cfg:        cfg,
		prettyJSON: cfg.PrettyJSON != nil && *cfg.PrettyJSON,
		out:        os.Stdout,
		now:        time.Now,
	}
}

// SetOutput redirects command output.
func (s *Session) SetOutput(w io.Writer) {
	s.out = w
}

// Run starts the interactive loop and returns on exit, EOF or an
// interrupt on an empty line.
func (s *Session) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     s.cfg.HistoryFile,
		AutoComplete:    s.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("init readline failed: %w", err)
	}
	defer func() { _ = rl.Close() }()
	s.rl = rl
	s.out = rl.Stdout()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			s.printLine("bye")
			return nil
		}
		if s.handleSystemCommand(line) {
			continue
		}
		if err := s.Exec(ctx, line); err != nil {
			s.printLine("error: %v", err)
		}
	}
}

// Exec runs one command line.
func (s *Session) Exec(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	return s.ExecArgs(ctx, tokens)
}

// ExecArgs runs a command given as "<service> <action> key=value ...".
// Failed responses are rendered and returned as errors carrying the
// service's error code.
func (s *Session) ExecArgs(ctx context.Context, tokens []string) error {
	if len(tokens) < 2 {
		return fmt.Errorf("invalid command, use: <service> <action> key=value ...")
	}
	cmd, ok := s.commands[tokens[0]+" "+tokens[1]]
	if !ok {
		return fmt.Errorf("unknown command: %s %s", tokens[0], tokens[1])
	}
	params, err := command.ParseArgs(tokens[2:])
	if err != nil {
		return err
	}
	params.Canonicalize(cmd.Fields)
	if err := s.promptMissing(cmd, params); err != nil {
		return err
	}
	if cmd.RequiresAuth {
		if err := s.ensureToken(); err != nil {
			return err
		}
	}
	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(ctx, req.Method, req.Path, req.Headers, req.Body)
	if err != nil {
		return err
	}
	s.renderResponse(resp)
	return resp.Err()
}

func (s *Session) handleSystemCommand(line string) bool {
	if line == "help" {
		s.printHelp()
		return true
	}
	if line == "logout" {
		*s.tokenState = state.TokenState{}
		if err := state.Clear(s.cfg.TokenStatePath); err != nil {
			s.printLine("clear token failed: %v", err)
			return true
		}
		s.printLine("token cleared")
		return true
	}
	if line == "login" || strings.HasPrefix(line, "login ") {
		s.handleLogin(strings.TrimSpace(strings.TrimPrefix(line, "login")))
		return true
	}
	if strings.HasPrefix(line, "set ") {
		s.handleSet(strings.TrimSpace(strings.TrimPrefix(line, "set ")))
		return true
	}
	if strings.HasPrefix(line, "show ") {
		s.handleShow(strings.TrimSpace(strings.TrimPrefix(line, "show ")))
		return true
	}
	return false
}

func (s *Session) handleLogin(subject string) {
	if subject == "" {
		subject = s.cfg.Auth.Subject
	}
	if err := s.mint(subject); err != nil {
		s.printLine("login failed: %v", err)
		return
	}
	s.printLine("logged in as %s until %s", subject, s.tokenState.ExpiresAt.Format(time.RFC3339))
}

func (s *Session) ensureToken() error {
	if !s.tokenState.Expired(s.now()) {
		return nil
	}
	if s.cfg.Auth.Secret == "" || s.cfg.Auth.Subject == "" {
		return fmt.Errorf("no valid access token, use 'set token <token>' or configure auth")
	}
	return s.mint(s.cfg.Auth.Subject)
}

func (s *Session) mint(subject string) error {
	auth := s.cfg.Auth
	signed, expires, err := token.Mint(auth.Secret, auth.Issuer, subject, auth.Role, auth.TTL, s.now())
	if err != nil {
		return err
	}
	*s.tokenState = state.TokenState{AccessToken: signed, Subject: subject, ExpiresAt: expires}
	return state.Save(s.cfg.TokenStatePath, *s.tokenState)
}

func (s *Session) handleSet(args string) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		s.printLine("usage: set base|token|timeout")
		return
	}
	switch parts[0] {
	case "base":
		if len(parts) < 2 {
			s.printLine("usage: set base http://127.0.0.1:8080")
			return
		}
		s.client.SetBaseURL(parts[1])
		s.printLine("base set to %s", parts[1])
	case "timeout":
		if len(parts) < 2 {
			s.printLine("usage: set timeout 10s")
			return
		}
		dur, err := time.ParseDuration(parts[1])
		if err != nil {
			s.printLine("invalid duration: %v", err)
			return
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
	case "token":
		if len(parts) < 2 {
			s.printLine("usage: set token <access_token>")
			return
		}
		*s.tokenState = state.TokenState{AccessToken: parts[1]}
		if err := state.Save(s.cfg.TokenStatePath, *s.tokenState); err != nil {
			s.printLine("save token failed: %v", err)
			return
		}
		s.printLine("token updated")
	default:
		s.printLine("unknown set command")
	}
}

func (s *Session) handleShow(args string) {
	switch args {
	case "token":
		if s.tokenState.AccessToken == "" {
			s.printLine("token: <empty>")
			return
		}
		tok := s.tokenState.AccessToken
		if len(tok) > 12 {
			tok = tok[:6] + "..." + tok[len(tok)-4:]
		}
		s.printLine("token: %s subject: %s expired: %v", tok, s.tokenState.Subject, s.tokenState.Expired(s.now()))
	case "config":
		s.printLine("baseURL: %s", s.cfg.BaseURL)
		s.printLine("tokenStatePath: %s", s.cfg.TokenStatePath)
		s.printLine("historyFile: %s", s.cfg.HistoryFile)
	default:
		s.printLine("usage: show token|config")
	}
}

func (s *Session) promptMissing(cmd command.Command, params command.Params) error {
	if s.rl == nil {
		return nil
	}
	defer s.rl.SetPrompt(prompt)
	for _, field := range cmd.Fields {
		if !field.Required || params.Get(field.Name) != "" {
			continue
		}
		s.rl.SetPrompt(field.Prompt + ": ")
		value, err := s.rl.Readline()
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		params.Set(field.Name, strings.TrimSpace(value))
	}
	return nil
}

func (s *Session) completer() *readline.PrefixCompleter {
	actions := map[string][]string{}
	for _, cmd := range s.commands {
		actions[cmd.Service] = append(actions[cmd.Service], cmd.Action)
	}
	services := make([]string, 0, len(actions))
	for service := range actions {
		services = append(services, service)
	}
	sort.Strings(services)

	items := make([]readline.PrefixCompleterInterface, 0, len(services)+6)
	for _, service := range services {
		sort.Strings(actions[service])
		children := make([]readline.PrefixCompleterInterface, 0, len(actions[service]))
		for _, action := range actions[service] {
			children = append(children, readline.PcItem(action))
		}
		items = append(items, readline.PcItem(service, children...))
	}
	items = append(items,
		readline.PcItem("login"),
		readline.PcItem("logout"),
		readline.PcItem("set", readline.PcItem("base"), readline.PcItem("timeout"), readline.PcItem("token")),
		readline.PcItem("show", readline.PcItem("token"), readline.PcItem("config")),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
	return readline.NewPrefixCompleter(items...)
}

func (s *Session) renderResponse(resp httpclient.ResponseInfo) {
	s.printLine("HTTP %d (%s)", resp.StatusCode, resp.Duration)
	if resp.TraceID != "" {
		s.printLine("trace: %s", resp.TraceID)
	}
	if len(resp.Body) == 0 {
		return
	}
	if s.prettyJSON {
		var raw interface{}
		if err := json.Unmarshal(resp.Body, &raw); err == nil {
			formatted, _ := json.MarshalIndent(raw, "", "  ")
			s.printLine("%s", string(formatted))
			return
		}
	}
	s.printLine("%s", string(resp.Body))
}

func (s *Session) printHelp() {
	s.printLine("usage: <service> <action> key=value ...")
	s.printLine("system: help | exit | login [subject] | logout | set base|timeout|token | show token|config")
	s.printLine("examples:")
	s.printLine("  review run submission_id=42 force=yes")
	s.printLine("  review status id=42")
	s.printLine("  review import")
	s.printLine("  roster import file=./roster.csv")
	s.printLine("  service health")
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}
