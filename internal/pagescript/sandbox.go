package pagescript

import (
	"context"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// Sandbox wraps a goja VM used to validate and exercise the injected page
// scripts outside a real browser page. Scripts talk back to the host through
// the same postMessage channel the shell wires up at injection time, so a
// sandbox run observes exactly the JSON the websocket handler would see.
type Sandbox struct {
	vm     *goja.Runtime
	config SandboxConfig
	mu     sync.Mutex

	console   []LogEntry
	messages  []string
	captureMu sync.Mutex

	interrupt chan struct{}
}

// SandboxConfig defines execution limits.
type SandboxConfig struct {
	Timeout       time.Duration
	EnableConsole bool
}

// LogEntry represents console output captured during a run.
type LogEntry struct {
	Level   string
	Message string
	Time    time.Time
}

// RunResult holds the outcome of one script execution.
type RunResult struct {
	Value    interface{}
	Console  []LogEntry
	Messages []string // raw JSON sent through the host channel
	Duration time.Duration
}

// DefaultSandboxConfig matches the limits used for the startup self-check.
func DefaultSandboxConfig() SandboxConfig {
	return SandboxConfig{
		Timeout:       5 * time.Second,
		EnableConsole: true,
	}
}

// NewSandbox creates a sandboxed runtime.
func NewSandbox(config SandboxConfig) (*Sandbox, error) {
	s := &Sandbox{
		vm:        goja.New(),
		config:    config,
		interrupt: make(chan struct{}),
	}
	s.vm.SetMaxCallStackSize(1024)
	if err := s.setupGlobals(); err != nil {
		return nil, err
	}
	return s, nil
}

// Compile parses a script without executing it. Used at startup to reject a
// broken injection payload before any page sees it.
func Compile(name, script string) error {
	_, err := goja.Compile(name, script, true)
	return err
}

// Execute runs a script with timeout and captures console output and host
// messages.
func (s *Sandbox) Execute(ctx context.Context, script string) (*RunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()

	timer := time.NewTimer(s.config.Timeout)
	defer timer.Stop()

	go func() {
		select {
		case <-timer.C:
			s.vm.Interrupt("execution timeout exceeded")
		case <-ctx.Done():
			s.vm.Interrupt("context cancelled")
		case <-s.interrupt:
			return
		}
	}()

	s.captureMu.Lock()
	s.console = nil
	s.messages = nil
	s.captureMu.Unlock()

	val, err := s.vm.RunString(script)

	close(s.interrupt)
	s.interrupt = make(chan struct{})

	result := &RunResult{Duration: time.Since(start)}
	if err != nil {
		return result, err
	}

	if val != nil && !goja.IsUndefined(val) && !goja.IsNull(val) {
		result.Value = val.Export()
	}

	s.captureMu.Lock()
	result.Console = append([]LogEntry{}, s.console...)
	result.Messages = append([]string{}, s.messages...)
	s.captureMu.Unlock()

	return result, nil
}

// setupGlobals strips dangerous globals and installs the host channel.
func (s *Sandbox) setupGlobals() error {
	s.vm.Set("require", goja.Undefined())
	s.vm.Set("process", goja.Undefined())
	s.vm.Set("module", goja.Undefined())
	s.vm.Set("exports", goja.Undefined())

	if s.config.EnableConsole {
		console := s.vm.NewObject()
		console.Set("log", s.makeConsoleFunc("log"))
		console.Set("warn", s.makeConsoleFunc("warn"))
		console.Set("error", s.makeConsoleFunc("error"))
		console.Set("info", s.makeConsoleFunc("info"))
		s.vm.Set("console", console)
	}

	// Host channel: the injected scripts send JSON strings through
	// window.__velaHost.postMessage. In the sandbox "window" is the global.
	host := s.vm.NewObject()
	host.Set("postMessage", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) > 0 {
			s.captureMu.Lock()
			s.messages = append(s.messages, call.Arguments[0].String())
			s.captureMu.Unlock()
		}
		return goja.Undefined()
	})

	window := s.vm.GlobalObject()
	window.Set("__velaHost", host)
	s.vm.Set("window", window)

	// Timers are inert here: runs are synchronous, and the page scripts
	// only use timers for debounce, which the sandbox does not exercise.
	s.vm.Set("setTimeout", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })
	s.vm.Set("setInterval", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })
	s.vm.Set("clearTimeout", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })

	return nil
}

func (s *Sandbox) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		var msg string
		for i, arg := range call.Arguments {
			if i > 0 {
				msg += " "
			}
			msg += arg.String()
		}
		s.captureMu.Lock()
		s.console = append(s.console, LogEntry{Level: level, Message: msg, Time: time.Now()})
		s.captureMu.Unlock()
		return goja.Undefined()
	}
}

// Close releases the VM.
func (s *Sandbox) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vm = nil
	return nil
}
