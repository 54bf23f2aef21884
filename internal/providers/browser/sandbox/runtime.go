package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
)

var ErrInterrupted = errors.New("script interrupted")

// Runtime wraps a goja VM that looks enough like a page for injected
// scripts to run their top level: window, document, navigator, location.
type Runtime struct {
	vm     *goja.Runtime
	config Config
	mu     sync.Mutex

	console   []LogEntry
	consoleMu sync.Mutex

	// listeners registered through addEventListener, by event type
	listeners map[string]int
}

// New creates a new sandboxed runtime
func New(config Config) (*Runtime, error) {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	r := &Runtime{
		vm:        goja.New(),
		config:    config,
		listeners: make(map[string]int),
	}
	if err := r.setupGlobals(); err != nil {
		return nil, err
	}
	return r, nil
}

// Compile reports syntax errors without running anything
func Compile(name, script string) error {
	if _, err := goja.Compile(name, script, false); err != nil {
		return fmt.Errorf("compile %s: %w", name, err)
	}
	return nil
}

// Check compiles and runs script in a fresh runtime
func Check(ctx context.Context, name, script string) (*Result, error) {
	if err := Compile(name, script); err != nil {
		return nil, err
	}
	r, err := New(DefaultConfig())
	if err != nil {
		return nil, err
	}
	defer r.Close()

	result, err := r.Execute(ctx, script)
	if err != nil {
		return result, fmt.Errorf("run %s: %w", name, err)
	}
	return result, nil
}

// Execute runs JavaScript code with timeout
func (r *Runtime) Execute(ctx context.Context, script string) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vm == nil {
		return nil, errors.New("runtime closed")
	}

	start := time.Now()
	result := &Result{}

	r.consoleMu.Lock()
	r.console = nil
	r.consoleMu.Unlock()

	timer := time.NewTimer(r.config.Timeout)
	defer timer.Stop()
	done := make(chan struct{})
	exited := make(chan struct{})

	go func(vm *goja.Runtime) {
		defer close(exited)
		select {
		case <-timer.C:
			vm.Interrupt(ErrInterrupted)
		case <-ctx.Done():
			vm.Interrupt(ErrInterrupted)
		case <-done:
		}
	}(r.vm)

	val, err := r.vm.RunString(script)
	close(done)
	<-exited
	r.vm.ClearInterrupt()
	result.Duration = time.Since(start)

	r.consoleMu.Lock()
	result.Console = append([]LogEntry(nil), r.console...)
	r.consoleMu.Unlock()

	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return result, ErrInterrupted
		}
		return result, err
	}

	result.Value = exportValue(val)
	return result, nil
}

// Eval evaluates an expression against the state left by earlier scripts
func (r *Runtime) Eval(expr string) (interface{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vm == nil {
		return nil, errors.New("runtime closed")
	}
	val, err := r.vm.RunString(expr)
	if err != nil {
		return nil, err
	}
	return exportValue(val), nil
}

// Listeners returns how many handlers were registered for an event type
func (r *Runtime) Listeners(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listeners[event]
}

// setupGlobals installs the browser-shaped globals
func (r *Runtime) setupGlobals() error {
	vm := r.vm
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	global := vm.GlobalObject()
	if err := vm.Set("window", global); err != nil {
		return err
	}

	if r.config.EnableConsole {
		console := vm.NewObject()
		for _, level := range []string{"log", "warn", "error", "info", "debug"} {
			_ = console.Set(level, r.makeConsoleFunc(level))
		}
		_ = vm.Set("console", console)
	}

	addListener := func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) > 0 {
			r.listeners[call.Arguments[0].String()]++
		}
		return goja.Undefined()
	}
	_ = global.Set("addEventListener", addListener)

	document := vm.NewObject()
	_ = document.Set("addEventListener", addListener)
	_ = document.Set("readyState", "loading")
	_ = document.Set("querySelector", func(goja.FunctionCall) goja.Value { return goja.Null() })
	_ = document.Set("querySelectorAll", func(goja.FunctionCall) goja.Value { return vm.NewArray() })
	_ = vm.Set("document", document)

	navigator := vm.NewObject()
	_ = navigator.Set("webdriver", true)
	_ = navigator.Set("plugins", vm.NewArray())
	_ = navigator.Set("languages", vm.NewArray())
	_ = navigator.Set("platform", "Linux x86_64")
	_ = navigator.Set("hardwareConcurrency", 2)
	_ = vm.Set("navigator", navigator)

	location := vm.NewObject()
	_ = location.Set("href", "about:blank")
	_ = location.Set("origin", "null")
	_ = vm.Set("location", location)

	_ = vm.Set("open", func(goja.FunctionCall) goja.Value { return goja.Null() })

	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	_ = vm.Set("setTimeout", noop)
	_ = vm.Set("setInterval", noop)
	return nil
}

// makeConsoleFunc creates a console function
func (r *Runtime) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		var msg string
		for i, arg := range call.Arguments {
			if i > 0 {
				msg += " "
			}
			msg += arg.String()
		}

		r.consoleMu.Lock()
		r.console = append(r.console, LogEntry{
			Level:   level,
			Message: msg,
			Time:    time.Now(),
		})
		r.consoleMu.Unlock()

		return goja.Undefined()
	}
}

func exportValue(val goja.Value) interface{} {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}

// Close releases resources
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.vm = nil
	r.console = nil
	return nil
}
